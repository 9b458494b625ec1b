// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oracle-worker/internal/common/logger"
	"oracle-worker/internal/common/queue"
	"oracle-worker/internal/models"
	llmsynthesis "oracle-worker/internal/workers/ai-conversation/llm-synthesis"
	querypostgresql "oracle-worker/internal/workers/data-access/query-postgresql"
	validatesubscription "oracle-worker/internal/workers/infrastructure/validate-subscription"
	extractcards "oracle-worker/internal/workers/oracle/extract-cards"
	normalizezodiac "oracle-worker/internal/workers/oracle/normalize-zodiac"
	processchatturn "oracle-worker/internal/workers/oracle/process-chat-turn"
)

const (
	queueName    = "oracle:jobs"
	customerSQL  = `SELECT customer_id FROM billing_customers WHERE user_id = \$1`
	towerReading = "The Tower appears upright, followed by Six of Cups (Reversed)."
)

// ==========================
// Test Environment
// ==========================

type env struct {
	mr           *miniredis.Miniredis
	rdb          *redis.Client
	db           *sql.DB
	mock         sqlmock.Sqlmock
	queue        *queue.RedisQueue
	store        *validatesubscription.RedisStore
	validator    *validatesubscription.Validator
	handler      *processchatturn.Handler
	billingCalls *atomic.Int32
}

func setup(t *testing.T) *env {
	t.Helper()
	log := logger.NewTestLogger(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	generator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"text":      towerReading,
			"astrology": map[string]interface{}{"sun_sign": "Escorpio"},
		})
	}))
	t.Cleanup(generator.Close)

	billingCalls := &atomic.Int32{}
	billing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		billingCalls.Add(1)
		switch r.URL.Path {
		case "/v1/customers/cus_1/subscription":
			_ = json.NewEncoder(w).Encode(models.BillingSubscription{ID: "sub_1", Status: models.SubscriptionActive})
		case "/v1/customers/cus_1/payment-method":
			_, _ = w.Write([]byte(`{"id":"pm_1","type":"card","card":{"exp_month":12,"exp_year":2099,"last4":"4242"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(billing.Close)

	q, err := queue.NewRedisQueue(rdb, queue.Config{Name: queueName, Mode: queue.ModeSimple}, log)
	require.NoError(t, err)

	subConfig := validatesubscription.LoadConfig()
	store := validatesubscription.NewRedisStore(rdb, subConfig.KeyPrefix, subConfig.CacheTTL)
	validator := validatesubscription.NewValidator(
		subConfig,
		validatesubscription.NewHTTPBillingClient(billing.URL, "sk_test", 5*time.Second),
		store,
		log,
	)
	gate := validatesubscription.NewHandler(subConfig, validator, validatesubscription.NewSQLCustomerResolver(db), log)

	pg := querypostgresql.NewHandler(&querypostgresql.Config{
		Timeout:      5 * time.Second,
		HistoryLimit: 10,
		UserHashSalt: "pepper",
	}, db, log)

	llm := llmsynthesis.NewHandler(&llmsynthesis.Config{
		GenAIBaseURL: generator.URL,
		APIKey:       "test-key",
		ClientName:   "oracle",
		Timeout:      5 * time.Second,
		MaxRetries:   1,
	}, log)

	deck, err := extractcards.LoadDeck()
	require.NoError(t, err)
	extractor, err := extractcards.NewExtractor(deck, &extractcards.Config{
		Policy:        extractcards.PolicyFullText,
		ContextWindow: extractcards.DefaultContextWindow,
		SectionMarker: extractcards.DefaultSectionMarker,
	})
	require.NoError(t, err)

	table, err := normalizezodiac.LoadTable()
	require.NoError(t, err)

	handler := processchatturn.NewHandler(nil, processchatturn.Dependencies{
		Store:      pg,
		Generator:  llm,
		Extractor:  extractor,
		Normalizer: normalizezodiac.NewNormalizer(table),
		Gate:       gate,
		Logger:     log,
	})

	return &env{
		mr:           mr,
		rdb:          rdb,
		db:           db,
		mock:         mock,
		queue:        q,
		store:        store,
		validator:    validator,
		handler:      handler,
		billingCalls: billingCalls,
	}
}

// runOne enqueues a job, receives it back off the queue and handles it.
func (e *env) runOne(t *testing.T, job *models.Job) (*processchatturn.Result, error) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, e.queue.Enqueue(ctx, job))
	delivery, err := e.queue.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, delivery)
	assert.Equal(t, job.UserID, delivery.Job.UserID)
	defer func() { assert.NoError(t, delivery.Ack(ctx)) }()

	return e.handler.Execute(ctx, delivery.Job)
}

func expectHistory(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT is_disabled, suspended_until\s+FROM account_status`).
		WithArgs(querypostgresql.HashUserID("pepper", "u1")).
		WillReturnRows(sqlmock.NewRows([]string{"is_disabled", "suspended_until"}))
	mock.ExpectQuery(`SELECT role, content\s+FROM messages`).
		WithArgs(querypostgresql.HashUserID("pepper", "u1"), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"role", "content"}).
			AddRow("assistant", "Welcome back."))
}

// ==========================
// Scenarios
// ==========================

func TestE2E_ReadingIsPersistedWithCardsInOrder(t *testing.T) {
	e := setup(t)
	hash := querypostgresql.HashUserID("pepper", "u1")

	expectHistory(e.mock)
	e.mock.ExpectQuery(customerSQL).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id"}).AddRow("cus_1"))
	e.mock.ExpectBegin()
	e.mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(sqlmock.AnyArg(), hash, "user", "What does today hold?", nil, sqlmock.AnyArg(), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	e.mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(sqlmock.AnyArg(), hash, "assistant", towerReading, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	e.mock.ExpectExec(`INSERT INTO message_cards`).
		WithArgs(sqlmock.AnyArg(), 0, 16, "The Tower", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	e.mock.ExpectExec(`INSERT INTO message_cards`).
		WithArgs(sqlmock.AnyArg(), 1, 27, "Six of Cups", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	e.mock.ExpectCommit()

	result, err := e.runOne(t, &models.Job{UserID: "u1", Message: "What does today hold?"})
	require.NoError(t, err)

	assert.Equal(t, processchatturn.OutcomeDelivered, result.Outcome)
	assert.Equal(t, 2, result.CardCount)
	assert.Equal(t, []models.StoredCard{
		{ID: 16, Name: "The Tower", Inverted: false},
		{ID: 27, Name: "Six of Cups", Inverted: true},
	}, result.Turn.Cards)
	assert.Equal(t, "scorpio", result.Turn.Astrology["sun_sign"])
	assert.NoError(t, e.mock.ExpectationsWereMet())

	// The health result was cached for the next turn.
	assert.True(t, e.mr.Exists("sub:health:cus_1"))
	queued, _, err := e.queue.Depth(context.Background())
	require.NoError(t, err)
	assert.Zero(t, queued)
}

func TestE2E_CachedCanceledSubscriptionBlocksReading(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.store.Put(ctx, "cus_2", &models.HealthResult{
		Healthy:        false,
		BlockedReason:  models.ReasonCanceled,
		BlockedMessage: validatesubscription.BlockedMessage(models.ReasonCanceled),
		Subscription: models.SubscriptionValidationResult{
			Status: models.SubscriptionCanceled,
			Reason: models.ReasonCanceled,
		},
		PaymentMethod: models.PaymentMethodValidationResult{Valid: true, LastFour: "4242"},
		CheckedAt:     time.Now(),
	}, 0)
	require.NoError(t, err)

	health, err := e.validator.CheckSubscriptionHealth(ctx, "cus_2")
	require.NoError(t, err)
	assert.False(t, health.Healthy)
	assert.Equal(t, models.ReasonCanceled, health.BlockedReason)
	assert.True(t, health.FromCache)

	expectHistory(e.mock)
	e.mock.ExpectQuery(customerSQL).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id"}).AddRow("cus_2"))
	// No transaction is expected. The denied reading never reaches persistence.

	result, err := e.runOne(t, &models.Job{UserID: "u1", Message: "Pull a card for me"})
	require.NoError(t, err)

	assert.Equal(t, processchatturn.OutcomeDenied, result.Outcome)
	assert.Equal(t, models.ReasonCanceled, result.Reason)
	assert.Zero(t, result.CardCount)
	assert.Nil(t, result.Turn)
	assert.Zero(t, e.billingCalls.Load(), "cached result answers without the provider")
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestE2E_DisabledAccountGetsNoticeWithoutGeneration(t *testing.T) {
	e := setup(t)
	hash := querypostgresql.HashUserID("pepper", "u1")

	e.mock.ExpectQuery(`SELECT is_disabled, suspended_until\s+FROM account_status`).
		WithArgs(hash).
		WillReturnRows(sqlmock.NewRows([]string{"is_disabled", "suspended_until"}).AddRow(true, nil))
	e.mock.ExpectBegin()
	e.mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(sqlmock.AnyArg(), hash, "user", "Pull a card for me", sqlmock.AnyArg(), sqlmock.AnyArg(), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	e.mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(sqlmock.AnyArg(), hash, "notice", sqlmock.AnyArg(), nil, sqlmock.AnyArg(), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	e.mock.ExpectCommit()

	result, err := e.runOne(t, &models.Job{UserID: "u1", Message: "Pull a card for me"})
	require.NoError(t, err)

	assert.Equal(t, processchatturn.OutcomeModerated, result.Outcome)
	assert.Equal(t, processchatturn.ActionAccountDisabled, result.Action)
	assert.Zero(t, e.billingCalls.Load())
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestE2E_MalformedJobIsRejectedAtEnqueue(t *testing.T) {
	e := setup(t)

	err := e.queue.Enqueue(context.Background(), &models.Job{UserID: " ", Message: "hi"})
	assert.ErrorIs(t, err, queue.ErrMalformedJob)

	queued, _, err := e.queue.Depth(context.Background())
	require.NoError(t, err)
	assert.Zero(t, queued)
}
