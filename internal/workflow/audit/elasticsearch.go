// Package audit ships requirement completion audit entries to Elasticsearch
// for reporting. The relational audit table stays the record of truth.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"permit-workers/internal/common/logger"
	"permit-workers/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
)

type document struct {
	ApplicationID string `json:"application_id"`
	RequirementID string `json:"requirement_id"`
	ActorUserID   string `json:"actor_user_id"`
	RecordedAt    string `json:"recorded_at"`
}

type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewElasticsearchSink(client *elasticsearch.Client, index string, log logger.Logger) *ElasticsearchSink {
	return &ElasticsearchSink{
		client: client,
		index:  index,
		logger: logger.Component(log, "audit-sink"),
	}
}

// RecordCompletion indexes the entry under a deterministic id, so a replay
// overwrites instead of duplicating.
func (s *ElasticsearchSink) RecordCompletion(ctx context.Context, entry models.CompletionAudit) error {
	body, err := json.Marshal(document{
		ApplicationID: entry.ApplicationID,
		RequirementID: entry.RequirementID,
		ActorUserID:   entry.ActorUserID,
		RecordedAt:    entry.RecordedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(entry.ApplicationID+":"+entry.RequirementID),
	)
	if err != nil {
		return fmt.Errorf("index audit entry: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("index audit entry: %s: %s", res.Status(), bytes.TrimSpace(msg))
	}

	s.logger.Debug("audit entry indexed", map[string]interface{}{
		"index":         s.index,
		"applicationId": entry.ApplicationID,
		"requirementId": entry.RequirementID,
	})
	return nil
}
