// internal/workers/ai-conversation/llm-synthesis/models.go
package llmsynthesis

import "oracle-worker/internal/models"

type Input struct {
	UserID string `json:"userId"`
	// RecentMessages is most recent first.
	RecentMessages []models.ChatMessage `json:"recentMessages"`
	Message        string               `json:"message"`
}

type Output struct {
	// Text is the full response with the brief section removed.
	Text  string `json:"text"`
	Brief string `json:"brief"`

	// Astrology is whatever chart fields the service attached, not yet
	// normalized.
	Astrology map[string]interface{} `json:"astrology,omitempty"`
}

type generateRequest struct {
	ClientName     string               `json:"clientName"`
	RecentMessages []models.ChatMessage `json:"recentMessages"`
	Message        string               `json:"message"`
	SystemPrompt   string               `json:"systemPrompt,omitempty"`
}

type generateResponse struct {
	Text      string                 `json:"text"`
	Astrology map[string]interface{} `json:"astrology,omitempty"`
}
