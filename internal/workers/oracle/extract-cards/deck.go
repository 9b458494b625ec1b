// internal/workers/oracle/extract-cards/deck.go
package extractcards

import (
	_ "embed"
	"fmt"
	"os"

	"oracle-worker/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed deck.yaml
var embeddedDeck []byte

type deckFile struct {
	Cards []models.Card `yaml:"cards"`
}

// LoadDeck returns the embedded 78-card deck.
func LoadDeck() (models.Deck, error) {
	return parseDeck(embeddedDeck)
}

// LoadDeckFromFile reads a deck in the same YAML layout as the embedded one.
func LoadDeckFromFile(path string) (models.Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deck %s: %w", path, err)
	}
	return parseDeck(data)
}

func parseDeck(data []byte) (models.Deck, error) {
	var f deckFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse deck: %w", err)
	}

	seenIDs := make(map[int]bool, len(f.Cards))
	seenNames := make(map[string]bool, len(f.Cards))
	for _, c := range f.Cards {
		if c.Name == "" {
			return nil, fmt.Errorf("card %d has no name", c.ID)
		}
		if seenIDs[c.ID] {
			return nil, fmt.Errorf("duplicate card id %d", c.ID)
		}
		if seenNames[c.Name] {
			return nil, fmt.Errorf("duplicate card name %q", c.Name)
		}
		seenIDs[c.ID] = true
		seenNames[c.Name] = true
	}
	return models.Deck(f.Cards), nil
}
