// internal/workers/data-access/query-postgresql/queries/messages.go
package queries

import (
	"context"
	"fmt"
	"time"

	"oracle-worker/internal/models"
)

// MessageRow is one row of messages.
type MessageRow struct {
	ID         string
	UserIDHash string
	Role       string
	Content    string
	Brief      *string
	Kind       *string
	Metadata   []byte
	CreatedAt  time.Time
}

const recentMessagesSQL = `
	SELECT role, content
	FROM messages
	WHERE user_id_hash = $1
	  AND role IN ('system', 'assistant', 'user')
	ORDER BY created_at DESC
	LIMIT $2`

// RecentMessages returns up to limit context messages, most recent first.
func RecentMessages(ctx context.Context, q Querier, userIDHash string, limit int) ([]models.ChatMessage, error) {
	if userIDHash == "" {
		return nil, ErrMissingParam
	}

	rows, err := q.QueryContext(ctx, recentMessagesSQL, userIDHash, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0, limit)
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

const insertMessageSQL = `
	INSERT INTO messages (id, user_id_hash, role, content, brief, kind, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func InsertMessage(ctx context.Context, q Querier, m MessageRow) error {
	var metadata interface{}
	if len(m.Metadata) > 0 {
		metadata = m.Metadata
	}
	_, err := q.ExecContext(ctx, insertMessageSQL,
		m.ID, m.UserIDHash, m.Role, m.Content, m.Brief, m.Kind, metadata, m.CreatedAt)
	return err
}

const insertCardSQL = `
	INSERT INTO message_cards (message_id, position, card_id, card_name, inverted)
	VALUES ($1, $2, $3, $4, $5)`

// InsertCards stores cards in draw order.
func InsertCards(ctx context.Context, q Querier, messageID string, cards []models.StoredCard) error {
	for i, c := range cards {
		if _, err := q.ExecContext(ctx, insertCardSQL, messageID, i, c.ID, c.Name, c.Inverted); err != nil {
			return fmt.Errorf("insert card %d: %w", c.ID, err)
		}
	}
	return nil
}
