package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jroimartin/gocui"

	"github.com/Tyrowin/linechat/internal/protocol"
)

const (
	messagesView = "messages"
	statusView   = "status"
	inputView    = "input"
)

// Session is the connection the UI drives. *client.Client satisfies it.
type Session interface {
	Username() string
	Events() <-chan protocol.ServerMessage
	Done() <-chan struct{}
	SendChat(text string) (bool, error)
	Keystroke()
}

// UI is the full-screen terminal chat view: scrolling history, a typing
// status line and an input prompt.
type UI struct {
	gui     *gocui.Gui
	session Session

	// Only touched from gocui's main loop.
	typing TypingSet
}

// NewUI takes over the terminal. Call Run to start it.
func NewUI(session Session) (*UI, error) {
	g, err := gocui.NewGui(gocui.Output256)
	if err != nil {
		return nil, fmt.Errorf("init terminal: %w", err)
	}
	g.Cursor = true

	ui := &UI{gui: g, session: session}
	g.SetManagerFunc(ui.layout)
	if err := ui.keybindings(); err != nil {
		g.Close()
		return nil, err
	}
	return ui, nil
}

// Run blocks until the user quits or the server ends the connection, then
// restores the terminal.
func (ui *UI) Run() error {
	defer ui.gui.Close()
	go ui.pump()

	if err := ui.gui.MainLoop(); err != nil && !errors.Is(err, gocui.ErrQuit) {
		return err
	}
	return nil
}

func (ui *UI) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	if v, err := g.SetView(messagesView, 0, 0, maxX-1, maxY-5); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Title = "linechat"
		v.Wrap = true
		v.Autoscroll = true
		fmt.Fprintln(v, Success+"✓"+Reset+" Connected as "+FormatUsername(ui.session.Username(), true))
	}

	if v, err := g.SetView(statusView, 0, maxY-5, maxX-1, maxY-3); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Frame = false
	}

	if v, err := g.SetView(inputView, 0, maxY-3, maxX-1, maxY-1); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Title = StripANSI(Prompt(ui.session.Username()))
		v.Editable = true
		v.Editor = gocui.EditorFunc(ui.edit)
		if _, err := g.SetCurrentView(inputView); err != nil {
			return err
		}
	}
	return nil
}

func (ui *UI) keybindings() error {
	if err := ui.gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone,
		func(*gocui.Gui, *gocui.View) error { return gocui.ErrQuit }); err != nil {
		return err
	}
	return ui.gui.SetKeybinding(inputView, gocui.KeyEnter, gocui.ModNone, ui.submit)
}

// edit is the default line editor plus typing notification.
func (ui *UI) edit(v *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) {
	gocui.DefaultEditor.Edit(v, key, ch, mod)
	if ch != 0 || key == gocui.KeySpace {
		ui.session.Keystroke()
	}
}

func (ui *UI) submit(g *gocui.Gui, v *gocui.View) error {
	text := strings.TrimSpace(v.Buffer())
	v.Clear()
	if err := v.SetCursor(0, 0); err != nil {
		return err
	}
	if err := v.SetOrigin(0, 0); err != nil {
		return err
	}

	sent, err := ui.session.SendChat(text)
	if err != nil {
		return ui.appendLine(g, Error+"✗ Send failed:"+Reset+" "+err.Error())
	}
	if !sent {
		return nil
	}
	return ui.appendLine(g, FormatChat(ui.session.Username(), text))
}

// pump forwards session events onto gocui's main loop and quits it once the
// connection ends.
func (ui *UI) pump() {
	for msg := range ui.session.Events() {
		ui.gui.Update(func(g *gocui.Gui) error { return ui.handle(g, msg) })
	}
	<-ui.session.Done()
	ui.gui.Update(func(*gocui.Gui) error { return gocui.ErrQuit })
}

func (ui *UI) handle(g *gocui.Gui, msg protocol.ServerMessage) error {
	changed := ui.typing.Apply(msg)
	if line, ok := FormatEvent(msg); ok {
		if err := ui.appendLine(g, line); err != nil {
			return err
		}
	}
	if !changed {
		return nil
	}
	v, err := g.View(statusView)
	if err != nil {
		return err
	}
	v.Clear()
	fmt.Fprint(v, ui.typing.StatusLine())
	return nil
}

func (ui *UI) appendLine(g *gocui.Gui, line string) error {
	v, err := g.View(messagesView)
	if err != nil {
		return err
	}
	fmt.Fprintln(v, line)
	return nil
}
