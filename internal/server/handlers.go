// Package server exposes HTTP handlers for health checks and the built-in
// browser test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/Tyrowin/linechat/internal/logging"
)

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

// HealthHandler reports liveness and the number of connected clients.
func HealthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Clients: hub.ClientCount()}); err != nil {
			logging.Warn().Err(err).Msg("error writing health response")
		}
	}
}

// TestPageHandler serves an HTML page that joins the chat over /ws and
// speaks the JSON line protocol.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		logging.Warn().Err(err).Msg("error writing HTML response")
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>linechat test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        #typing { color: #777; font-style: italic; min-height: 1.2em; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>linechat test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="usernameInput" placeholder="Username">
        <button id="connectButton" onclick="toggleConnection()">Join</button>
    </div>
    <div id="messages"></div>
    <div id="typing"></div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <script>
        let ws = null;
        let username = '';
        let typingTimer = null;
        const typingUsers = [];
        const messagesDiv = document.getElementById('messages');
        const typingDiv = document.getElementById('typing');
        const usernameInput = document.getElementById('usernameInput');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addLine(text, color) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            el.style.color = color || 'black';
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function renderTyping() {
            if (typingUsers.length === 0) {
                typingDiv.textContent = '';
            } else if (typingUsers.length === 1) {
                typingDiv.textContent = typingUsers[0] + ' is typing...';
            } else if (typingUsers.length === 2) {
                typingDiv.textContent = typingUsers[0] + ' and ' + typingUsers[1] + ' are typing...';
            } else {
                typingDiv.textContent = typingUsers.length + ' people are typing...';
            }
        }

        function setTyping(name, on) {
            const i = typingUsers.indexOf(name);
            if (on && i < 0) typingUsers.push(name);
            if (!on && i >= 0) typingUsers.splice(i, 1);
            renderTyping();
        }

        function send(obj) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify(obj));
            }
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected as ' + username : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            usernameInput.disabled = connected;
            connectButton.textContent = connected ? 'Leave' : 'Join';
        }

        function connect() {
            username = usernameInput.value.trim();
            if (!username) return;
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');

            ws.onopen = function() {
                send({type: 'join', username: username});
                addLine('Connected to linechat', 'gray');
                updateStatus(true);
            };

            ws.onmessage = function(event) {
                let msg;
                try { msg = JSON.parse(event.data); } catch (e) { return; }
                switch (msg.type) {
                case 'user_joined':
                    addLine('→ ' + msg.username + ' has joined the chat', 'green');
                    break;
                case 'user_left':
                    setTyping(msg.username, false);
                    addLine('← ' + msg.username + ' has left the chat', 'red');
                    break;
                case 'chat':
                    setTyping(msg.username, false);
                    addLine(msg.username + ' › ' + msg.message);
                    break;
                case 'typing':
                    setTyping(msg.username, msg.isTyping);
                    break;
                }
            };

            ws.onclose = function() {
                addLine('Connection closed', 'gray');
                typingUsers.length = 0;
                renderTyping();
                updateStatus(false);
                ws = null;
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const message = messageInput.value.trim();
            if (!message) return;
            send({type: 'chat', message: message});
            addLine('You › ' + message, 'blue');
            messageInput.value = '';
            stopTyping();
        }

        function stopTyping() {
            if (typingTimer) {
                clearTimeout(typingTimer);
                typingTimer = null;
                send({type: 'typing_stop'});
            }
        }

        messageInput.addEventListener('keydown', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
                return;
            }
            if (!typingTimer) {
                send({type: 'typing_start'});
            } else {
                clearTimeout(typingTimer);
            }
            typingTimer = setTimeout(stopTyping, 2000);
        });
    </script>
</body>
</html>`
