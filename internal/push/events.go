package push

import (
	"context"
	"encoding/json"
	"fmt"

	"attestor/internal/platform/kafka/consumer"
	"attestor/internal/platform/kafka/publisher"
	provmodels "attestor/internal/provenance/models"
	dErrors "attestor/pkg/domain-errors"
)

// ConfirmationHandler consumes ledger-watcher events and applies them to the
// push service.
type ConfirmationHandler struct {
	service *Service
}

// NewConfirmationHandler creates the consumer handler.
func NewConfirmationHandler(service *Service) *ConfirmationHandler {
	return &ConfirmationHandler{service: service}
}

// Handle decodes and applies one confirmation. Malformed events are dropped
// with an invalid-input error swallowed: redelivering them cannot help.
func (h *ConfirmationHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var event ConfirmLedgerEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil
	}
	if err := h.service.ConfirmLedger(ctx, event); err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			return nil
		}
		return fmt.Errorf("apply ledger confirmation: %w", err)
	}
	return nil
}

var _ consumer.Handler = (*ConfirmationHandler)(nil)

// KafkaHistoryPublisher emits storage-history records to the downstream
// topic, keyed by dfid so one item's records stay ordered per partition.
type KafkaHistoryPublisher struct {
	publisher *publisher.Publisher
	topic     string
}

// NewKafkaHistoryPublisher creates the topic publisher.
func NewKafkaHistoryPublisher(pub *publisher.Publisher, topic string) *KafkaHistoryPublisher {
	return &KafkaHistoryPublisher{publisher: pub, topic: topic}
}

// PublishHistoryRecord emits one record.
func (p *KafkaHistoryPublisher) PublishHistoryRecord(ctx context.Context, record *provmodels.StorageHistoryRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}
	return p.publisher.Publish(ctx, p.topic, []byte(record.DFID), value)
}

var _ HistoryPublisher = (*KafkaHistoryPublisher)(nil)
