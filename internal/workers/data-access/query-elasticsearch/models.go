// internal/workers/data-access/query-elasticsearch/models.go
package queryelasticsearch

import "oracle-worker/internal/models"

type SearchInput struct {
	UserIDHash string `json:"userIdHash"`
	CardID     int    `json:"cardId"`
	Size       int    `json:"size"`
}

type SearchOutput struct {
	Readings  []models.Turn `json:"readings"`
	TotalHits int64         `json:"totalHits"`
}
