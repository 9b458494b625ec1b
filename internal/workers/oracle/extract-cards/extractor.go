// internal/workers/oracle/extract-cards/extractor.go
package extractcards

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"oracle-worker/internal/models"
)

var reversalPattern = regexp.MustCompile(`(?i)\breversed\b|\binverted\b|\bupside[\s-]down\b|\(r\)|\(reversed\)`)

// Extractor finds tarot cards named in free text. It is immutable after
// construction and safe for concurrent use.
type Extractor struct {
	config   *Config
	deck     models.Deck
	patterns []*regexp.Regexp
	// order lists deck indexes by descending name length.
	order   []int
	section *regexp.Regexp
}

func NewExtractor(deck models.Deck, config *Config) (*Extractor, error) {
	if config == nil {
		config = &Config{Policy: PolicyFullText, ContextWindow: DefaultContextWindow, SectionMarker: DefaultSectionMarker}
	}
	switch config.Policy {
	case PolicyFullText, PolicyTruncateAtInsight:
	default:
		return nil, fmt.Errorf("unknown extraction policy %q", config.Policy)
	}

	e := &Extractor{
		config:   config,
		deck:     deck,
		patterns: make([]*regexp.Regexp, len(deck)),
		order:    make([]int, len(deck)),
	}

	for i, card := range deck {
		re, err := cardPattern(card.Name)
		if err != nil {
			return nil, fmt.Errorf("card %q: %w", card.Name, err)
		}
		e.patterns[i] = re
		e.order[i] = i
	}
	sort.SliceStable(e.order, func(a, b int) bool {
		return len(deck[e.order[a]].Name) > len(deck[e.order[b]].Name)
	})

	if config.Policy == PolicyTruncateAtInsight {
		marker := config.SectionMarker
		if marker == "" {
			marker = DefaultSectionMarker
		}
		re, err := regexp.Compile(marker)
		if err != nil {
			return nil, fmt.Errorf("section marker: %w", err)
		}
		e.section = re
	}

	return e, nil
}

// cardPattern matches the canonical name case-insensitively on word
// boundaries, with an optional leading "The".
func cardPattern(name string) (*regexp.Regexp, error) {
	base := strings.TrimSpace(name)
	if len(base) > 4 && strings.EqualFold(base[:4], "the ") {
		base = base[4:]
	}
	words := strings.Fields(base)
	if len(words) == 0 {
		return nil, fmt.Errorf("empty card name")
	}
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.Compile(`(?i)\b(?:the\s+)?` + strings.Join(words, `\s+`) + `\b`)
}

// Extract returns the distinct cards named in text, ordered by first
// appearance. It never returns nil.
func (e *Extractor) Extract(text string) []models.ExtractedCard {
	result := []models.ExtractedCard{}
	if text == "" || len(e.deck) == 0 {
		return result
	}

	scan := e.scope(text)
	occs := e.findOccurrences(scan)
	if len(occs) == 0 {
		return result
	}
	firstOccurrenceWins(occs)

	seen := make(map[int]bool, len(occs))
	for i, o := range occs {
		card := e.deck[o.cardIdx]
		if seen[card.ID] {
			continue
		}
		seen[card.ID] = true
		result = append(result, models.ExtractedCard{
			ID:       card.ID,
			Name:     card.Name,
			Inverted: reversalPattern.MatchString(e.window(scan, occs, i)),
			Position: o.start,
		})
	}
	return result
}

// scope applies the section policy.
func (e *Extractor) scope(text string) string {
	if e.section == nil {
		return text
	}
	if loc := e.section.FindStringIndex(text); loc != nil {
		return text[:loc[0]]
	}
	return text
}

// findOccurrences matches longer names first and discards any occurrence
// that overlaps one already accepted.
func (e *Extractor) findOccurrences(scan string) []occurrence {
	var all []occurrence
	for _, idx := range e.order {
		for _, loc := range e.patterns[idx].FindAllStringIndex(scan, -1) {
			all = append(all, occurrence{cardIdx: idx, start: loc[0], end: loc[1]})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].start != all[j].start {
			return all[i].start < all[j].start
		}
		return all[i].end-all[i].start > all[j].end-all[j].start
	})

	kept := all[:0]
	lastEnd := -1
	for _, o := range all {
		if o.start < lastEnd {
			continue
		}
		kept = append(kept, o)
		lastEnd = o.end
	}
	return kept
}

// firstOccurrenceWins orders occurrences by position so that deduplication
// keeps each card's earliest mention.
func firstOccurrenceWins(occs []occurrence) {
	sort.SliceStable(occs, func(i, j int) bool { return occs[i].start < occs[j].start })
}

// window returns the text around occs[i] used for reversal detection. Text
// between two cards belongs to the earlier one: the window stops at the next
// card, and it never reaches back into the text the previous card's forward
// half already covers.
func (e *Extractor) window(scan string, occs []occurrence, i int) string {
	o := occs[i]
	half := e.config.ContextWindow / 2

	lo := o.start - half
	if lo < 0 {
		lo = 0
	}
	if i > 0 {
		claimed := occs[i-1].end + half
		if claimed > o.start {
			claimed = o.start
		}
		if claimed > lo {
			lo = claimed
		}
	}

	hi := o.end + half
	if hi > len(scan) {
		hi = len(scan)
	}
	if i+1 < len(occs) && occs[i+1].start < hi {
		hi = occs[i+1].start
	}
	return scan[lo:hi]
}

// FormatForStorage keeps only the persisted fields.
func FormatForStorage(cards []models.ExtractedCard) []models.StoredCard {
	out := make([]models.StoredCard, 0, len(cards))
	for _, c := range cards {
		out = append(out, models.StoredCard{ID: c.ID, Name: c.Name, Inverted: c.Inverted})
	}
	return out
}
