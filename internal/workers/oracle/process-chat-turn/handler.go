// internal/workers/oracle/process-chat-turn/handler.go
package processchatturn

import (
	"context"
	"errors"
	"time"

	commonerrors "oracle-worker/internal/common/errors"
	"oracle-worker/internal/common/logger"
	"oracle-worker/internal/common/metrics"
	"oracle-worker/internal/common/observability"
	"oracle-worker/internal/models"
	llmsynthesis "oracle-worker/internal/workers/ai-conversation/llm-synthesis"
	sendnotification "oracle-worker/internal/workers/communication/send-notification"
	querypostgresql "oracle-worker/internal/workers/data-access/query-postgresql"
	validatesubscription "oracle-worker/internal/workers/infrastructure/validate-subscription"
	extractcards "oracle-worker/internal/workers/oracle/extract-cards"
	normalizezodiac "oracle-worker/internal/workers/oracle/normalize-zodiac"
)

const (
	TaskType = "process-chat-turn"
)

// Dependencies wires the pipeline stages. Archiver, Notifier and Obs are
// optional.
type Dependencies struct {
	Store      ConversationStore
	Generator  Generator
	Extractor  *extractcards.Extractor
	Normalizer *normalizezodiac.Normalizer
	Gate       SubscriptionGate
	Archiver   Archiver
	Notifier   Notifier
	Obs        *observability.Observability
	Logger     logger.Logger
}

// Handler runs one chat turn through moderation, context fetch, generation,
// extraction, normalization, the subscription gate and persistence. It
// implements queue.JobHandler.
type Handler struct {
	config *Config
	deps   Dependencies
	errors *commonerrors.ErrorHandler
	logger logger.Logger
	now    func() time.Time
}

func NewHandler(config *Config, deps Dependencies) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	log := deps.Logger.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		deps:   deps,
		errors: commonerrors.NewErrorHandler(log),
		logger: log,
		now:    time.Now,
	}
}

// Handle processes job. A denied gated job is a completed job, not an error.
// Any returned error is a *commonerrors.StandardError and the job is dropped.
func (h *Handler) Handle(ctx context.Context, job *models.Job) error {
	start := h.now()

	result, err := h.Execute(ctx, job)
	elapsed := h.now().Sub(start)

	if err != nil {
		stage := StageDequeuing
		var se *stageError
		if errors.As(err, &se) {
			stage = se.stage
		}
		stdErr := h.errors.HandleJobError(commonerrors.JobRef{
			UserID:  job.UserID,
			Message: job.Message,
			Stage:   string(stage),
		}, err)

		metrics.JobsFailed.WithLabelValues(string(stage), string(stdErr.Code)).Inc()
		h.deps.Obs.RecordJobProcessed(ctx, "failed")
		h.deps.Obs.RecordJobDuration(ctx, elapsed, "failed")
		return stdErr
	}

	kind := result.Kind
	metrics.JobsCompleted.WithLabelValues(string(kind), result.Outcome).Inc()
	metrics.JobDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	h.deps.Obs.RecordJobProcessed(ctx, result.Outcome)
	h.deps.Obs.RecordJobDuration(ctx, elapsed, result.Outcome)

	h.logger.Info("Job completed", map[string]interface{}{
		"userId":    job.UserID,
		"kind":      kind,
		"outcome":   result.Outcome,
		"cards":     result.CardCount,
		"elapsedMs": elapsed.Milliseconds(),
	})
	return nil
}

// Execute runs the pipeline and reports what happened. Errors are tagged with
// the failing stage.
func (h *Handler) Execute(ctx context.Context, job *models.Job) (*Result, error) {
	if !job.Valid() {
		return nil, &stageError{stage: StageDequeuing, err: commonerrors.NewMalformedJobError("userId and message are required")}
	}
	kind := ClassifyKind(job.Message)

	if result, err := h.moderate(ctx, job, kind); err != nil || result != nil {
		return result, err
	}

	var history *querypostgresql.FetchOutput
	err := h.stage(ctx, StageContextFetch, func() error {
		var err error
		history, err = h.deps.Store.FetchRecent(ctx, &querypostgresql.FetchInput{
			UserID: job.UserID,
			Limit:  h.config.HistoryLimit,
		})
		if err != nil {
			return commonerrors.NewContextFetchFailedError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var generated *llmsynthesis.Output
	err = h.stage(ctx, StageGenerating, func() error {
		var err error
		generated, err = h.deps.Generator.Execute(ctx, &llmsynthesis.Input{
			UserID:         job.UserID,
			RecentMessages: history.Messages,
			Message:        job.Message,
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, llmsynthesis.ErrLLMTimeout):
			return commonerrors.NewGenerationTimeoutError(err)
		default:
			return commonerrors.NewGenerationFailedError(err)
		}
	})
	if err != nil {
		return nil, err
	}

	var cards []models.StoredCard
	h.timed(ctx, StageExtracting, func() {
		extracted := h.deps.Extractor.Extract(generated.Text)
		metrics.CardsExtracted.Add(float64(len(extracted)))
		cards = extractcards.FormatForStorage(extracted)
	})

	var astrology map[string]interface{}
	h.timed(ctx, StageNormalizing, func() {
		astrology = h.deps.Normalizer.NormalizeRecord(generated.Astrology)
	})

	if h.config.gated(kind) {
		var gate *validatesubscription.Output
		err = h.stage(ctx, StageValidating, func() error {
			var err error
			gate, err = h.deps.Gate.Execute(ctx, &validatesubscription.Input{UserID: job.UserID})
			if gate != nil {
				// A denial carries both a result and an error.
				return nil
			}
			if err == nil {
				err = errors.New("no result from subscription check")
			}
			return commonerrors.NewProviderUnavailableError("billing", err)
		})
		if err != nil {
			return nil, err
		}
		if !gate.Allowed {
			return h.deny(ctx, job, kind, gate)
		}
	}

	turn := &models.Turn{
		UserID:        job.UserID,
		Kind:          kind,
		UserMessage:   job.Message,
		AssistantText: generated.Text,
		Brief:         generated.Brief,
		Cards:         cards,
		Astrology:     astrology,
	}
	err = h.stage(ctx, StagePersisting, func() error {
		if _, err := h.deps.Store.PersistTurn(ctx, turn); err != nil {
			return commonerrors.NewPersistenceFailedError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.recordViolations(ctx, job, generated.Text)
	h.archive(ctx, turn)

	return &Result{
		Kind:      kind,
		Outcome:   OutcomeDelivered,
		Turn:      turn,
		CardCount: len(cards),
	}, nil
}

// deny stores the billing notice in place of the reading and publishes it.
// The generated reading is discarded.
func (h *Handler) deny(ctx context.Context, job *models.Job, kind models.JobKind, gate *validatesubscription.Output) (*Result, error) {
	reason := models.ReasonProviderUnavailable
	if gate.Health != nil {
		reason = gate.Health.BlockedReason
	}
	message := validatesubscription.BlockedMessage(reason)

	var turn *models.Turn
	if h.config.PersistBlockedNotice {
		turn = &models.Turn{
			UserID:        job.UserID,
			Kind:          kind,
			UserMessage:   job.Message,
			AssistantText: message,
			Notice:        true,
		}
		err := h.stage(ctx, StagePersisting, func() error {
			if _, err := h.deps.Store.PersistTurn(ctx, turn); err != nil {
				return commonerrors.NewPersistenceFailedError(err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if h.deps.Notifier != nil {
		_, err := h.deps.Notifier.Execute(ctx, &sendnotification.Input{
			UserIDHash: h.deps.Store.UserIDHash(job.UserID),
			CustomerID: gate.CustomerID,
			Kind:       kind,
			Reason:     reason,
			Message:    message,
		})
		if err != nil {
			stdErr := commonerrors.NewNotificationSendFailedError("sns", err)
			h.logger.Warn("Billing notice not sent", map[string]interface{}{
				"userId":    job.UserID,
				"errorCode": string(stdErr.Code),
				"channel":   stdErr.Metadata["channel"],
				"details":   stdErr.Details,
			})
		}
	}

	return &Result{
		Kind:    kind,
		Outcome: OutcomeDenied,
		Turn:    turn,
		Reason:  reason,
	}, nil
}

// moderate checks the account standing and the user message before anything
// is generated. A non-nil result ends the job with a stored notice.
func (h *Handler) moderate(ctx context.Context, job *models.Job, kind models.JobKind) (*Result, error) {
	var (
		action    Action
		violation models.ViolationType
	)
	err := h.stage(ctx, StageModerating, func() error {
		standing, err := h.deps.Store.AccountStanding(ctx, job.UserID)
		if err != nil {
			return commonerrors.NewContextFetchFailedError(err)
		}
		switch {
		case standing.Disabled:
			action = ActionAccountDisabled
			return nil
		case standing.Suspended(h.now()):
			action = ActionAccountSuspended
			return nil
		}

		vt, severity, found := DetectMessageViolation(job.Message)
		if !found {
			return nil
		}
		violation = vt

		count, err := h.deps.Store.RecordEscalation(ctx, models.Violation{
			UserID:   job.UserID,
			Type:     vt,
			Message:  job.Message,
			Severity: severity,
		})
		if err != nil {
			return commonerrors.NewPersistenceFailedError(err)
		}

		action = EnforcementFor(vt, count)
		switch action {
		case ActionDisabled:
			err = h.deps.Store.DisableAccount(ctx, job.UserID)
		case ActionSuspended:
			err = h.deps.Store.SuspendAccount(ctx, job.UserID, h.now().Add(suspensionPeriod))
		}
		if err != nil {
			return commonerrors.NewPersistenceFailedError(err)
		}
		return nil
	})
	if err != nil || action == "" {
		return nil, err
	}

	var reply string
	switch action {
	case ActionAccountDisabled:
		reply = accountDisabledReply
	case ActionAccountSuspended:
		reply = accountSuspendedReply
	default:
		reply = ViolationReply(violation, action)
	}

	turn := &models.Turn{
		UserID:        job.UserID,
		Kind:          kind,
		UserMessage:   job.Message,
		AssistantText: reply,
		Notice:        true,
	}
	err = h.stage(ctx, StagePersisting, func() error {
		if _, err := h.deps.Store.PersistTurn(ctx, turn); err != nil {
			return commonerrors.NewPersistenceFailedError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.logger.Warn("Message moderated", map[string]interface{}{
		"userId":        job.UserID,
		"violationType": violation,
		"action":        action,
	})

	return &Result{
		Kind:      kind,
		Outcome:   OutcomeModerated,
		Turn:      turn,
		Action:    action,
		Violation: violation,
	}, nil
}

func (h *Handler) recordViolations(ctx context.Context, job *models.Job, response string) {
	for _, vt := range DetectViolations(response) {
		err := h.deps.Store.RecordViolation(ctx, models.Violation{
			UserID:   job.UserID,
			Type:     vt,
			Message:  job.Message,
			Severity: violationSeverity[vt],
		})
		if err != nil {
			h.logger.Warn("Failed to record violation", map[string]interface{}{
				"userId":        job.UserID,
				"violationType": vt,
				"error":         err.Error(),
			})
		}
	}
}

// archive indexes readings that drew cards. Failures are logged only.
func (h *Handler) archive(ctx context.Context, turn *models.Turn) {
	if h.deps.Archiver == nil || len(turn.Cards) == 0 {
		return
	}
	err := h.stage(ctx, StageArchiving, func() error {
		if err := h.deps.Archiver.ArchiveTurn(ctx, turn); err != nil {
			return commonerrors.NewArchiveFailedError(err)
		}
		return nil
	})
	if err != nil {
		h.logger.Warn("Reading not archived", map[string]interface{}{
			"assistantMessageId": turn.AssistantMessageID,
			"error":              err.Error(),
		})
	}
}

// timed records how long fn took under the stage name.
func (h *Handler) timed(ctx context.Context, stage Stage, fn func()) {
	start := h.now()
	fn()
	h.deps.Obs.RecordStage(ctx, string(stage), h.now().Sub(start))
}

// stage times fn and tags its error with the stage name.
func (h *Handler) stage(ctx context.Context, stage Stage, fn func() error) error {
	var err error
	h.timed(ctx, stage, func() { err = fn() })
	if err != nil {
		return &stageError{stage: stage, err: err}
	}
	return nil
}
