// internal/workers/oracle/normalize-zodiac/normalizer.go
package normalizezodiac

// Fields holds the record keys that carry a sign or body name.
var Fields = map[string]bool{
	"zodiac_sign":  true,
	"sun_sign":     true,
	"moon_sign":    true,
	"rising_sign":  true,
	"asc_sign":     true,
	"mercury_sign": true,
	"venus_sign":   true,
	"mars_sign":    true,
	"jupiter_sign": true,
	"saturn_sign":  true,
}

type Normalizer struct {
	table *Table
}

func NewNormalizer(table *Table) *Normalizer {
	return &Normalizer{table: table}
}

// Normalize lowercases and trims term and maps it to its canonical English
// name. Unknown terms come back lowercased and trimmed.
func (n *Normalizer) Normalize(term string) string {
	if canonical, ok := n.table.Canonical(term); ok {
		return canonical
	}
	return foldTerm(term)
}

// NormalizeRecord returns a copy of record with every known astrology field
// normalized. Nested objects are handled the same way. The input is not
// modified.
func (n *Normalizer) NormalizeRecord(record map[string]interface{}) map[string]interface{} {
	if record == nil {
		return nil
	}
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		switch val := v.(type) {
		case string:
			if Fields[k] {
				out[k] = n.Normalize(val)
			} else {
				out[k] = val
			}
		case map[string]interface{}:
			out[k] = n.NormalizeRecord(val)
		default:
			out[k] = v
		}
	}
	return out
}
