package core

import (
	"context"
	"fmt"
	"net/http"

	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/metrics"
)

// Ingest validates one payload and stores it as a reading. Any timestamp
// in the payload is ignored; storage stamps the reading with server time.
func (s *Service) Ingest(ctx context.Context, contentType string, body []byte) Response {
	s.logger.Info(ctx, fmt.Sprintf("received payload (%d bytes)", len(body)))
	s.logger.Debug(ctx, fmt.Sprintf("payload: %s", body))

	if !IsJSONContentType(contentType) {
		s.logger.Warn(ctx, fmt.Sprintf("rejected payload with content type %q", contentType))
		s.metrics.ReadingIngested(metrics.OutcomeRejected)
		return message(http.StatusBadRequest, MsgNotJSON)
	}

	fields, err := decodePayload(body)
	if err != nil {
		s.logger.Warn(ctx, "rejected payload that is not a JSON object")
		s.metrics.ReadingIngested(metrics.OutcomeRejected)
		return message(http.StatusBadRequest, MsgNotJSON)
	}

	if err := checkRequired(fields); err != nil {
		s.logger.Warn(ctx, err.Error())
		s.metrics.ReadingIngested(metrics.OutcomeRejected)
		return message(http.StatusBadRequest, MsgMissingFields)
	}

	reading, err := toReading(fields)
	if err != nil {
		s.logger.Error(ctx, fmt.Sprintf("error saving data: %v", err))
		s.metrics.ReadingIngested(metrics.OutcomeFailed)
		return failure(MsgSaveFailed, err)
	}

	stored, err := s.store.Insert(ctx, reading)
	if err != nil {
		s.logger.Error(ctx, fmt.Sprintf("error saving data: %v", err))
		s.metrics.ReadingIngested(metrics.OutcomeFailed)
		return failure(MsgSaveFailed, err)
	}

	s.logger.Info(ctx, fmt.Sprintf("data saved for device %s (id %d)", stored.DeviceID, stored.ID))
	s.metrics.ReadingIngested(metrics.OutcomeSaved)
	s.metrics.ObserveCPU(stored.CPUUsage)

	if err := s.publishers.PublishAll(ctx, stored, s.metrics.ReadingPublished); err != nil {
		s.logger.Warn(ctx, fmt.Sprintf("publish failed for reading %d: %v", stored.ID, err))
	}

	return message(http.StatusOK, MsgSaved)
}
