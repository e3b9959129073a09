// Package audit records every accepted ledger command asynchronously. The
// trail complements the entry log: entries carry monetary state, audit
// records carry who did what through which surface.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Record struct {
	ID        uuid.UUID         `json:"id"`
	Action    string            `json:"action"`
	Data      any               `json:"data,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type RecordOption func(*Record)

func WithAction(action string) RecordOption {
	return func(r *Record) {
		r.Action = action
	}
}

func WithData(data any) RecordOption {
	return func(r *Record) {
		r.Data = data
	}
}

func WithMetadata(metadata map[string]string) RecordOption {
	return func(r *Record) {
		for k, v := range metadata {
			r.Metadata[k] = v
		}
	}
}

func NewRecord(opts ...RecordOption) Record {
	r := Record{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		Metadata:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

type Sink interface {
	Save(ctx context.Context, r Record) error
	ByAction(ctx context.Context, action string) ([]Record, error)
}
