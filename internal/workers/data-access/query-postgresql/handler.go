// internal/workers/data-access/query-postgresql/handler.go
package querypostgresql

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"oracle-worker/internal/common/database"
	"oracle-worker/internal/common/logger"
	"oracle-worker/internal/models"
	"oracle-worker/internal/workers/data-access/query-postgresql/queries"

	"github.com/google/uuid"
)

const (
	TaskType = "query-postgresql"

	maxViolationMessage = 500
)

var (
	ErrQueryExecutionFailed = errors.New("QUERY_EXECUTION_FAILED")
	ErrQueryTimeout         = errors.New("QUERY_TIMEOUT")
	ErrPersistFailed        = errors.New("PERSIST_FAILED")
)

// Handler reads conversation context and writes processed turns.
type Handler struct {
	config *Config
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func NewHandler(config *Config, db *sql.DB, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	return &Handler{
		config: config,
		db:     db,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
		now:    time.Now,
	}
}

// HashUserID returns the stored form of a user id.
func HashUserID(salt, userID string) string {
	sum := sha256.Sum256([]byte(salt + userID))
	return hex.EncodeToString(sum[:])
}

func (h *Handler) hash(userID string) string {
	return HashUserID(h.config.UserHashSalt, userID)
}

// UserIDHash is the stored form of userID.
func (h *Handler) UserIDHash(userID string) string {
	return h.hash(userID)
}

// FetchRecent returns the user's latest context messages, most recent first.
// Only system, assistant and user messages are returned.
func (h *Handler) FetchRecent(ctx context.Context, input *FetchInput) (*FetchOutput, error) {
	limit := input.Limit
	if limit <= 0 || limit > h.config.HistoryLimit {
		limit = h.config.HistoryLimit
	}
	if limit <= 0 {
		return &FetchOutput{Messages: []models.ChatMessage{}}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	messages, err := queries.RecentMessages(ctx, h.db, h.hash(input.UserID), limit)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrQueryTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrQueryExecutionFailed, err)
	}
	return &FetchOutput{Messages: messages}, nil
}

// PersistTurn writes the user message, the assistant message and its cards in
// one transaction. Nothing is written if any insert fails.
func (h *Handler) PersistTurn(ctx context.Context, turn *models.Turn) (*PersistOutput, error) {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = h.now().UTC()
	}
	if turn.UserIDHash == "" {
		turn.UserIDHash = h.hash(turn.UserID)
	}
	if turn.UserMessageID == "" {
		turn.UserMessageID = uuid.NewString()
	}
	if turn.AssistantMessageID == "" {
		turn.AssistantMessageID = uuid.NewString()
	}

	var metadata []byte
	if len(turn.Astrology) > 0 {
		var err error
		if metadata, err = json.Marshal(map[string]interface{}{"astrology": turn.Astrology}); err != nil {
			return nil, fmt.Errorf("%w: marshal metadata: %v", ErrPersistFailed, err)
		}
	}

	kind := string(turn.Kind)
	var brief *string
	if turn.Brief != "" {
		brief = &turn.Brief
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	err := database.WithTx(ctx, h.db, func(tx *sql.Tx) error {
		if err := queries.InsertMessage(ctx, tx, queries.MessageRow{
			ID:         turn.UserMessageID,
			UserIDHash: turn.UserIDHash,
			Role:       models.RoleUser,
			Content:    turn.UserMessage,
			Kind:       &kind,
			CreatedAt:  turn.CreatedAt,
		}); err != nil {
			return fmt.Errorf("insert user message: %w", err)
		}

		// The reply sorts after the message it answers.
		if err := queries.InsertMessage(ctx, tx, queries.MessageRow{
			ID:         turn.AssistantMessageID,
			UserIDHash: turn.UserIDHash,
			Role:       turn.AssistantRole(),
			Content:    turn.AssistantText,
			Brief:      brief,
			Kind:       &kind,
			Metadata:   metadata,
			CreatedAt:  turn.CreatedAt.Add(time.Millisecond),
		}); err != nil {
			return fmt.Errorf("insert assistant message: %w", err)
		}

		return queries.InsertCards(ctx, tx, turn.AssistantMessageID, turn.Cards)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	h.logger.Debug("Turn persisted", map[string]interface{}{
		"userMessageId":      turn.UserMessageID,
		"assistantMessageId": turn.AssistantMessageID,
		"cards":              len(turn.Cards),
	})

	return &PersistOutput{
		UserMessageID:      turn.UserMessageID,
		AssistantMessageID: turn.AssistantMessageID,
		CardCount:          len(turn.Cards),
	}, nil
}

// RecordViolation stores a safety signal for the user. The message is cut to
// 500 characters.
func (h *Handler) RecordViolation(ctx context.Context, v models.Violation) error {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	err := queries.InsertViolation(ctx, h.db, h.hash(v.UserID), string(v.Type), 1, cutMessage(v.Message), v.Severity)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQueryExecutionFailed, err)
	}
	return nil
}

// RecordEscalation stores a user-message violation with the next count for
// its type and returns that count.
func (h *Handler) RecordEscalation(ctx context.Context, v models.Violation) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	hash := h.hash(v.UserID)
	var count int
	err := database.WithTx(ctx, h.db, func(tx *sql.Tx) error {
		previous, err := queries.LatestViolationCount(ctx, tx, hash, string(v.Type))
		if err != nil {
			return fmt.Errorf("read violation count: %w", err)
		}
		count = previous + 1
		return queries.InsertViolation(ctx, tx, hash, string(v.Type), count, cutMessage(v.Message), v.Severity)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrQueryExecutionFailed, err)
	}
	return count, nil
}

// AccountStanding returns whether the user is disabled or suspended.
func (h *Handler) AccountStanding(ctx context.Context, userID string) (*models.AccountStanding, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	disabled, until, err := queries.AccountStatus(ctx, h.db, h.hash(userID))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrQueryTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrQueryExecutionFailed, err)
	}
	return &models.AccountStanding{Disabled: disabled, SuspendedUntil: until}, nil
}

func (h *Handler) DisableAccount(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	if err := queries.DisableAccount(ctx, h.db, h.hash(userID)); err != nil {
		return fmt.Errorf("%w: %v", ErrQueryExecutionFailed, err)
	}
	return nil
}

func (h *Handler) SuspendAccount(ctx context.Context, userID string, until time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	if err := queries.SuspendAccount(ctx, h.db, h.hash(userID), until.UTC()); err != nil {
		return fmt.Errorf("%w: %v", ErrQueryExecutionFailed, err)
	}
	return nil
}

func cutMessage(message string) string {
	runes := []rune(message)
	if len(runes) > maxViolationMessage {
		runes = runes[:maxViolationMessage]
	}
	return string(runes)
}

// Ping checks the database connection.
func (h *Handler) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}
