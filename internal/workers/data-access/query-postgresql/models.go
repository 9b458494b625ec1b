// internal/workers/data-access/query-postgresql/models.go
package querypostgresql

import "oracle-worker/internal/models"

type FetchInput struct {
	UserID string `json:"userId"`
	Limit  int    `json:"limit"`
}

type FetchOutput struct {
	// Messages is most recent first.
	Messages []models.ChatMessage `json:"messages"`
}

type PersistOutput struct {
	UserMessageID      string `json:"userMessageId"`
	AssistantMessageID string `json:"assistantMessageId"`
	CardCount          int    `json:"cardCount"`
}
