// internal/models/card.go
package models

// Card is one entry of the tarot deck.
type Card struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Suit string `json:"suit" yaml:"suit"`
}

// Deck is the ordered, read-only card list.
type Deck []Card

// ByID returns the card with the given id.
func (d Deck) ByID(id int) (Card, bool) {
	for _, c := range d {
		if c.ID == id {
			return c, true
		}
	}
	return Card{}, false
}

// ExtractedCard is a card found in generated text.
type ExtractedCard struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Inverted bool   `json:"inverted"`
	// Position is the byte offset of the first occurrence.
	Position int `json:"-"`
}

// StoredCard is the persisted shape of an extracted card.
type StoredCard struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Inverted bool   `json:"inverted"`
}
