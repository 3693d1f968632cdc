// Package names generates display names for chat clients.
package names

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/brianvoe/gofakeit/v7"
)

// MaxLength is the longest name Generate returns.
const MaxLength = 20

// maxAttempts bounds how many fresh names are drawn before falling back to a
// numeric suffix.
const maxAttempts = 16

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Generator produces first_last style names that are unique for its lifetime.
type Generator struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
	seen  map[string]struct{}
}

// NewGenerator returns a generator. A zero seed draws from crypto/rand.
func NewGenerator(seed uint64) *Generator {
	return &Generator{
		faker: gofakeit.New(seed),
		seen:  make(map[string]struct{}),
	}
}

// Generate returns a new name not returned before by this generator.
func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var name string
	for range maxAttempts {
		name = Normalize(g.faker.FirstName() + "_" + g.faker.LastName())
		if g.claim(name) {
			return name
		}
	}
	for i := 2; ; i++ {
		suffix := strconv.Itoa(i)
		candidate := name
		if len(candidate)+len(suffix) > MaxLength {
			candidate = candidate[:MaxLength-len(suffix)]
		}
		if g.claim(candidate + suffix) {
			return candidate + suffix
		}
	}
}

func (g *Generator) claim(name string) bool {
	if name == "" {
		return false
	}
	if _, dup := g.seen[name]; dup {
		return false
	}
	g.seen[name] = struct{}{}
	return true
}

// Normalize lower-cases s, collapses each run of characters outside [a-z0-9]
// to a single underscore and truncates to MaxLength.
func Normalize(s string) string {
	s = nonAlnum.ReplaceAllString(strings.ToLower(s), "_")
	if len(s) > MaxLength {
		s = s[:MaxLength]
	}
	return s
}
