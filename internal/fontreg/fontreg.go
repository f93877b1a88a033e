// Package fontreg is the process-wide registry of preloaded fonts.
//
// Fonts registered here live for the whole process lifetime, there is no way to
// unregister them.
package fontreg

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/image/font/sfnt"
)

// Default is the process-wide font registry.
var Default = NewRegistry()

// Font is a parsed and registered font.
type Font struct {
	Family string
	Source string
	Glyphs int
	Font   *sfnt.Font
}

// Registry stores fonts by family name. Safe for concurrent use.
type Registry struct {
	fonts map[string]Font
	mu    sync.RWMutex
}

// NewRegistry returns a new empty registry.
func NewRegistry() *Registry {
	return &Registry{fonts: map[string]Font{}}
}

// Parse parses raw TrueType or OpenType font data.
func Parse(data []byte) (*sfnt.Font, error) {
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("could not parse font: %w", err)
	}
	return f, nil
}

// FamilyName returns the family name embedded in the font.
func FamilyName(f *sfnt.Font) (string, error) {
	var buf sfnt.Buffer
	name, err := f.Name(&buf, sfnt.NameIDFamily)
	if err != nil {
		return "", fmt.Errorf("could not get font family name: %w", err)
	}
	return name, nil
}

// Register adds a font to the registry. If family is empty the embedded family name
// is used. Registering an already known family replaces it.
func (r *Registry) Register(family, source string, f *sfnt.Font) (Font, error) {
	if f == nil {
		return Font{}, fmt.Errorf("font is required")
	}

	family = strings.TrimSpace(family)
	if family == "" {
		name, err := FamilyName(f)
		if err != nil {
			return Font{}, err
		}
		family = name
	}
	if family == "" {
		return Font{}, fmt.Errorf("font family is required")
	}

	font := Font{
		Family: family,
		Source: source,
		Glyphs: f.NumGlyphs(),
		Font:   f,
	}

	r.mu.Lock()
	r.fonts[strings.ToLower(family)] = font
	r.mu.Unlock()

	return font, nil
}

// Lookup returns a registered font by family, the lookup is case insensitive.
func (r *Registry) Lookup(family string) (Font, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.fonts[strings.ToLower(strings.TrimSpace(family))]
	return f, ok
}

// Families returns the registered family names sorted.
func (r *Registry) Families() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	families := make([]string, 0, len(r.fonts))
	for _, f := range r.fonts {
		families = append(families, f.Family)
	}
	sort.Strings(families)
	return families
}
