package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"careflow/db"
)

// Message represents a transactional outbox entry awaiting delivery.
type Message struct {
	ID        string
	Topic     string
	Payload   []byte
	Status    string
	Attempts  int
	CreatedAt time.Time
}

// Topics emitted by the provisioning lifecycle.
const (
	TopicEntityProvisioned   = "entity.provisioned"
	TopicEntityDeprovisioned = "entity.deprovisioned"
)

// Writer enqueues outbox messages inside the caller's unit of work so the
// event commits or vanishes together with the domain writes it describes.
type Writer struct{}

// NewWriter creates an outbox writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Enqueue stages an outbox message for downstream delivery.
func (w *Writer) Enqueue(ctx context.Context, u *db.UnitOfWork, topic string, payload map[string]any) error {
	if topic == "" {
		return fmt.Errorf("outbox: empty topic")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}
	if err := u.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`, topic, body); err != nil {
		return fmt.Errorf("outbox: enqueue: %w", err)
	}
	return nil
}
