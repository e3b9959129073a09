package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hieudm/groupledger/store"
)

type sqlSink struct {
	db *store.DB
}

func NewSqlSink(db *store.DB) *sqlSink {
	return &sqlSink{db: db}
}

func (s *sqlSink) Save(ctx context.Context, r Record) error {
	data, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("marshaling record data: %w", err)
	}
	metadata, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling record metadata: %w", err)
	}
	query := s.db.Rebind(`INSERT INTO audit_log (id, action, record_data, record_metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)`)
	if _, err := s.db.ExecContext(ctx, query, r.ID, r.Action, string(data), string(metadata), r.CreatedAt); err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}

func (s *sqlSink) ByAction(ctx context.Context, action string) ([]Record, error) {
	query := s.db.Rebind(`SELECT id, action, record_data, record_metadata, created_at
		FROM audit_log WHERE action = $1 ORDER BY created_at ASC`)
	rows, err := s.db.QueryContext(ctx, query, action)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var r Record
		var data, metadata string
		if err := rows.Scan(&r.ID, &r.Action, &data, &metadata, &r.CreatedAt); err != nil {
			return records, err
		}
		if err := json.Unmarshal([]byte(data), &r.Data); err != nil {
			return records, fmt.Errorf("unmarshaling record data: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &r.Metadata); err != nil {
			return records, fmt.Errorf("unmarshaling record metadata: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
