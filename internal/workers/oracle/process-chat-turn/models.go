// internal/workers/oracle/process-chat-turn/models.go
package processchatturn

import (
	"context"
	"time"

	"oracle-worker/internal/models"
	llmsynthesis "oracle-worker/internal/workers/ai-conversation/llm-synthesis"
	sendnotification "oracle-worker/internal/workers/communication/send-notification"
	querypostgresql "oracle-worker/internal/workers/data-access/query-postgresql"
	validatesubscription "oracle-worker/internal/workers/infrastructure/validate-subscription"
)

// Stage names one step of the pipeline. They label failure metrics and logs.
type Stage string

const (
	StageDequeuing    Stage = "dequeuing"
	StageModerating   Stage = "moderating"
	StageContextFetch Stage = "context_fetch"
	StageGenerating   Stage = "generating"
	StageExtracting   Stage = "extracting"
	StageNormalizing  Stage = "normalizing"
	StageValidating   Stage = "validating"
	StagePersisting   Stage = "persisting"
	StageArchiving    Stage = "archiving"
)

// Outcomes of a completed job.
const (
	OutcomeDelivered = "delivered"
	OutcomeDenied    = "denied"
	OutcomeModerated = "moderated"
)

// ConversationStore is implemented by querypostgresql.Handler.
type ConversationStore interface {
	FetchRecent(ctx context.Context, input *querypostgresql.FetchInput) (*querypostgresql.FetchOutput, error)
	PersistTurn(ctx context.Context, turn *models.Turn) (*querypostgresql.PersistOutput, error)
	RecordViolation(ctx context.Context, v models.Violation) error
	UserIDHash(userID string) string

	AccountStanding(ctx context.Context, userID string) (*models.AccountStanding, error)
	RecordEscalation(ctx context.Context, v models.Violation) (int, error)
	DisableAccount(ctx context.Context, userID string) error
	SuspendAccount(ctx context.Context, userID string, until time.Time) error
}

// Generator is implemented by llmsynthesis.Handler.
type Generator interface {
	Execute(ctx context.Context, input *llmsynthesis.Input) (*llmsynthesis.Output, error)
}

// SubscriptionGate is implemented by validatesubscription.Handler.
type SubscriptionGate interface {
	Execute(ctx context.Context, input *validatesubscription.Input) (*validatesubscription.Output, error)
}

// Archiver is implemented by queryelasticsearch.Handler.
type Archiver interface {
	ArchiveTurn(ctx context.Context, turn *models.Turn) error
}

// Notifier is implemented by sendnotification.Handler.
type Notifier interface {
	Execute(ctx context.Context, input *sendnotification.Input) (*sendnotification.Output, error)
}

// Result describes a job that ran to completion. Reason is set for denied
// jobs, Action and Violation for moderated ones.
type Result struct {
	Kind      models.JobKind
	Outcome   string
	Turn      *models.Turn
	Reason    models.ReasonCode
	Action    Action
	Violation models.ViolationType
	CardCount int
}

// stageError tags err with the stage it came from.
type stageError struct {
	stage Stage
	err   error
}

func (e *stageError) Error() string {
	return string(e.stage) + ": " + e.err.Error()
}

func (e *stageError) Unwrap() error {
	return e.err
}
