// internal/workers/ai-conversation/llm-synthesis/handler.go
package llmsynthesis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	commonhttp "oracle-worker/internal/common/http"
	"oracle-worker/internal/common/logger"
	"oracle-worker/internal/models"
)

const (
	TaskType = "llm-synthesis"
)

var (
	ErrLLMTimeout         = errors.New("LLM_TIMEOUT")
	ErrLLMSynthesisFailed = errors.New("LLM_SYNTHESIS_FAILED")
)

type Handler struct {
	config *Config
	client *commonhttp.Client
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	return &Handler{
		config: config,
		// No client timeout; the context deadline bounds every attempt.
		client: commonhttp.NewClient(config.GenAIBaseURL, 0).WithBearerToken(config.APIKey),
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

// Execute asks the generation service for a response to input.Message and
// splits off the brief summary.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	recent := input.RecentMessages
	if recent == nil {
		recent = []models.ChatMessage{}
	}
	req := generateRequest{
		ClientName:     h.config.ClientName,
		RecentMessages: recent,
		Message:        input.Message,
		SystemPrompt:   h.config.SystemPrompt,
	}

	var (
		resp    generateResponse
		lastErr error
	)
	for attempt := 0; attempt <= h.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ErrLLMTimeout
			}
		}

		lastErr = h.client.DoJSON(ctx, http.MethodPost, "/v1/generate", req, &resp)
		if lastErr == nil || !retryable(lastErr) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		h.logger.Warn("Generation attempt failed", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   lastErr.Error(),
		})
	}

	if lastErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrLLMTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrLLMSynthesisFailed, lastErr)
	}

	if strings.TrimSpace(resp.Text) == "" {
		return nil, fmt.Errorf("%w: empty response", ErrLLMSynthesisFailed)
	}

	full, brief := SplitBrief(resp.Text)

	h.logger.Info("LLM synthesis completed", map[string]interface{}{
		"userId":      input.UserID,
		"historySize": len(input.RecentMessages),
		"chars":       len(full),
	})

	return &Output{Text: full, Brief: brief, Astrology: resp.Astrology}, nil
}

// retryable reports whether another attempt could succeed. Client errors
// other than 429 are final.
func retryable(err error) bool {
	var statusErr *commonhttp.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}
