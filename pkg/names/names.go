// Package names translates the plural entity type names used at the boundary into
// the singular canonical names the registry stores.
package names

import "fmt"

const (
	LearningProvider = "learning-provider"
	ManagementGroup  = "management-group"
)

// Translator is built once at startup and passed to whatever needs it.
type Translator struct {
	toSingular map[string]string
	toPlural   map[string]string
}

// Default covers the closed set of supported entity types.
func Default() *Translator {
	t, _ := NewTranslator(map[string]string{
		"learning-providers": LearningProvider,
		"management-groups":  ManagementGroup,
	})
	return t
}

// NewTranslator builds a translator from a plural to singular table. The table must be one to one.
func NewTranslator(pluralToSingular map[string]string) (*Translator, error) {
	t := &Translator{
		toSingular: make(map[string]string, len(pluralToSingular)),
		toPlural:   make(map[string]string, len(pluralToSingular)),
	}
	for plural, singular := range pluralToSingular {
		if plural == "" || singular == "" {
			return nil, fmt.Errorf("empty entity type name in table")
		}
		if existing, ok := t.toPlural[singular]; ok {
			return nil, fmt.Errorf("entity type %q is mapped from both %q and %q", singular, existing, plural)
		}
		t.toSingular[plural] = singular
		t.toPlural[singular] = plural
	}
	return t, nil
}

// Singular returns false for unrecognized names.
func (t *Translator) Singular(plural string) (string, bool) {
	s, ok := t.toSingular[plural]
	return s, ok
}

// Plural returns false for unrecognized names.
func (t *Translator) Plural(singular string) (string, bool) {
	p, ok := t.toPlural[singular]
	return p, ok
}

// IsCanonical reports whether name is a known singular type.
func (t *Translator) IsCanonical(name string) bool {
	_, ok := t.toPlural[name]
	return ok
}
