// internal/workers/data-access/query-elasticsearch/handler.go
package queryelasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"oracle-worker/internal/common/logger"
	"oracle-worker/internal/models"
	"oracle-worker/internal/workers/data-access/query-elasticsearch/queries"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	TaskType = "query-elasticsearch"
)

var (
	ErrArchiveFailed     = errors.New("ARCHIVE_FAILED")
	ErrSearchQueryFailed = errors.New("SEARCH_QUERY_FAILED")
	ErrSearchTimeout     = errors.New("SEARCH_TIMEOUT")
)

// Handler archives persisted readings and searches them.
type Handler struct {
	config *Config
	client *elasticsearch.Client
	logger logger.Logger
}

func NewHandler(config *Config, client *elasticsearch.Client, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	return &Handler{
		config: config,
		client: client,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// ArchiveTurn indexes turn under its assistant message id. Indexing the same
// turn twice overwrites the document.
func (h *Handler) ArchiveTurn(ctx context.Context, turn *models.Turn) error {
	body, err := queries.BuildReadingDocument(turn)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	req := esapi.IndexRequest{
		Index:      h.config.Index,
		DocumentID: turn.AssistantMessageID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, h.client)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: %s", ErrArchiveFailed, res.String())
	}

	h.logger.Debug("Reading archived", map[string]interface{}{
		"index":      h.config.Index,
		"documentId": turn.AssistantMessageID,
		"cards":      len(turn.Cards),
	})
	return nil
}

// ReadingsWithCard returns the user's archived readings that drew a card.
func (h *Handler) ReadingsWithCard(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	body, err := queries.BuildCardQuery(input.UserIDHash, input.CardID, input.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchQueryFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	res, err := h.client.Search(
		h.client.Search.WithContext(ctx),
		h.client.Search.WithIndex(h.config.Index),
		h.client.Search.WithBody(body),
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrSearchTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrSearchQueryFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrSearchQueryFailed, res.String())
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string                  `json:"_id"`
				Source queries.ReadingDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSearchQueryFailed, err)
	}

	out := &SearchOutput{
		Readings:  make([]models.Turn, 0, len(parsed.Hits.Hits)),
		TotalHits: parsed.Hits.Total.Value,
	}
	for _, hit := range parsed.Hits.Hits {
		doc := hit.Source
		out.Readings = append(out.Readings, models.Turn{
			UserIDHash:         doc.UserIDHash,
			Kind:               models.JobKind(doc.Kind),
			UserMessage:        doc.UserMessage,
			AssistantMessageID: hit.ID,
			AssistantText:      doc.AssistantText,
			Brief:              doc.Brief,
			Cards:              doc.Cards,
			Astrology:          doc.Astrology,
			CreatedAt:          doc.CreatedAt,
		})
	}
	return out, nil
}
