// internal/workers/oracle/normalize-zodiac/table.go
package normalizezodiac

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed translations.yaml
var embeddedTranslations []byte

// Table maps localized sign and body names onto canonical English terms.
// It is read-only once loaded.
type Table struct {
	Locales []string                       `yaml:"locales"`
	Signs   map[string]map[string][]string `yaml:"signs"`
	Bodies  map[string]map[string][]string `yaml:"bodies"`

	lookup map[string]string
}

// LoadTable parses the embedded translation table.
func LoadTable() (*Table, error) {
	return ParseTable(embeddedTranslations)
}

// ParseTable builds a table from YAML. A term that maps to two different
// canonical names is rejected.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse translations: %w", err)
	}

	t.lookup = make(map[string]string)
	for _, group := range []map[string]map[string][]string{t.Signs, t.Bodies} {
		for canonical, byLocale := range group {
			canonical = strings.ToLower(strings.TrimSpace(canonical))
			if err := t.add(canonical, canonical); err != nil {
				return nil, err
			}
			for _, terms := range byLocale {
				for _, term := range terms {
					if err := t.add(term, canonical); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return &t, nil
}

func (t *Table) add(term, canonical string) error {
	key := foldTerm(term)
	if key == "" {
		return nil
	}
	if existing, ok := t.lookup[key]; ok && existing != canonical {
		return fmt.Errorf("term %q maps to both %q and %q", term, existing, canonical)
	}
	t.lookup[key] = canonical
	return nil
}

// Canonical returns the canonical term for a localized one.
func (t *Table) Canonical(term string) (string, bool) {
	c, ok := t.lookup[foldTerm(term)]
	return c, ok
}

// Validate reports every canonical term that lacks an entry for one of the
// declared locales.
func (t *Table) Validate() error {
	var missing []string
	for _, group := range []map[string]map[string][]string{t.Signs, t.Bodies} {
		for canonical, byLocale := range group {
			for _, locale := range t.Locales {
				if len(byLocale[locale]) == 0 {
					missing = append(missing, locale+":"+canonical)
				}
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("translations missing for %s", strings.Join(missing, ", "))
}

func foldTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
