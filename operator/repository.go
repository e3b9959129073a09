package operator

import (
	"context"
	"fmt"
	"time"

	"github.com/hieudm/groupledger/store"
)

type repository struct {
	db *store.DB
}

func NewRepository(db *store.DB) *repository {
	return &repository{db: db}
}

func (r *repository) IsOperator(ctx context.Context, userID, chatID int64) (bool, error) {
	query := r.db.Rebind(`SELECT COUNT(1) FROM operators WHERE chat_id = $1 AND user_id = $2`)
	var n int
	if err := r.db.QueryRowContext(ctx, query, chatID, userID).Scan(&n); err != nil {
		return false, fmt.Errorf("querying operator: %w", err)
	}
	return n > 0, nil
}

func (r *repository) Add(ctx context.Context, chatID, userID, addedBy int64) (*Operator, error) {
	exists, err := r.IsOperator(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyOperator
	}

	op := &Operator{
		ChatID:    chatID,
		UserID:    userID,
		AddedBy:   addedBy,
		CreatedAt: time.Now().UTC(),
	}
	query := r.db.Rebind(`INSERT INTO operators (chat_id, user_id, added_by, created_at) VALUES ($1, $2, $3, $4)`)
	if _, err := r.db.ExecContext(ctx, query, op.ChatID, op.UserID, op.AddedBy, op.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting operator: %w", err)
	}
	return op, nil
}

func (r *repository) Remove(ctx context.Context, chatID, userID int64) error {
	query := r.db.Rebind(`DELETE FROM operators WHERE chat_id = $1 AND user_id = $2`)
	res, err := r.db.ExecContext(ctx, query, chatID, userID)
	if err != nil {
		return fmt.Errorf("deleting operator: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotOperator
	}
	return nil
}

func (r *repository) List(ctx context.Context, chatID int64) ([]Operator, error) {
	query := r.db.Rebind(`SELECT chat_id, user_id, added_by, created_at FROM operators
		WHERE chat_id = $1 ORDER BY created_at ASC`)
	rows, err := r.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("querying operators: %w", err)
	}
	defer rows.Close()

	var ops []Operator
	for rows.Next() {
		var op Operator
		if err := rows.Scan(&op.ChatID, &op.UserID, &op.AddedBy, &op.CreatedAt); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
