// internal/workers/data-access/query-elasticsearch/queries/builders.go
package queries

import (
	"bytes"
	"encoding/json"
	"time"

	"oracle-worker/internal/models"
)

// ReadingDocument is the indexed form of a persisted turn. The raw user id is
// never indexed.
type ReadingDocument struct {
	UserIDHash    string                 `json:"userIdHash"`
	Kind          string                 `json:"kind"`
	UserMessage   string                 `json:"userMessage"`
	AssistantText string                 `json:"assistantText"`
	Brief         string                 `json:"brief,omitempty"`
	Cards         []models.StoredCard    `json:"cards"`
	Astrology     map[string]interface{} `json:"astrology,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
}

func BuildReadingDocument(turn *models.Turn) ([]byte, error) {
	cards := turn.Cards
	if cards == nil {
		cards = []models.StoredCard{}
	}
	return json.Marshal(ReadingDocument{
		UserIDHash:    turn.UserIDHash,
		Kind:          string(turn.Kind),
		UserMessage:   turn.UserMessage,
		AssistantText: turn.AssistantText,
		Brief:         turn.Brief,
		Cards:         cards,
		Astrology:     turn.Astrology,
		CreatedAt:     turn.CreatedAt,
	})
}

// BuildCardQuery finds a user's readings that drew the given card, newest
// first.
func BuildCardQuery(userIDHash string, cardID, size int) (*bytes.Buffer, error) {
	if size <= 0 || size > 100 {
		size = 20
	}
	query := map[string]interface{}{
		"size": size,
		"sort": []interface{}{
			map[string]interface{}{"createdAt": map[string]interface{}{"order": "desc"}},
		},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"userIdHash": userIDHash}},
					map[string]interface{}{
						"nested": map[string]interface{}{
							"path": "cards",
							"query": map[string]interface{}{
								"term": map[string]interface{}{"cards.id": cardID},
							},
						},
					},
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, err
	}
	return &buf, nil
}
