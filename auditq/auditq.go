// Package auditq ships audit records through an asynq queue so persistence
// runs in a separate worker process. The manager side uses QueueSink as its
// AuditStore; the worker side registers Handler against a real store.
package auditq

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/cargoflow/accessctl"
)

const (
	// QueueAudit is the queue audit records travel on.
	QueueAudit = "audit"
	// TaskTypeAccessRecord is the task type for persisting one audit record.
	TaskTypeAccessRecord = "audit:access_record"
)

// NewAccessRecordTask constructs an Asynq task carrying one audit record.
func NewAccessRecordTask(rec *accessctl.AuditRecord) (*asynq.Task, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAccessRecord, data, asynq.Queue(QueueAudit)), nil
}

// QueueSink is an accessctl.AuditStore that enqueues records instead of
// writing them.
type QueueSink struct {
	client *asynq.Client
}

func NewQueueSink(redisOpts asynq.RedisClientOpt) *QueueSink {
	return &QueueSink{client: asynq.NewClient(redisOpts)}
}

func (s *QueueSink) LogAccess(ctx context.Context, rec *accessctl.AuditRecord) error {
	task, err := NewAccessRecordTask(rec)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
	return err
}

// GetAccessLog is unsupported on the enqueue side; query the store the
// worker writes into.
func (s *QueueSink) GetAccessLog(ctx context.Context, filter accessctl.AuditFilter) ([]*accessctl.AuditRecord, error) {
	return nil, errors.New("auditq: access log queries are served by the worker's store")
}

// Close releases the underlying client.
func (s *QueueSink) Close() error {
	return s.client.Close()
}

// Handler persists queued records into a concrete store.
type Handler struct {
	store accessctl.AuditStore
}

func NewHandler(store accessctl.AuditStore) *Handler {
	return &Handler{store: store}
}

// Register binds the handler to its task type on the mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeAccessRecord, h.HandleAccessRecord)
}

// HandleAccessRecord fulfils the asynq.HandlerFunc contract.
func (h *Handler) HandleAccessRecord(ctx context.Context, t *asynq.Task) error {
	var rec accessctl.AuditRecord
	if err := json.Unmarshal(t.Payload(), &rec); err != nil {
		return asynq.SkipRetry
	}
	if rec.ID == "" {
		return asynq.SkipRetry
	}
	return h.store.LogAccess(ctx, &rec)
}
