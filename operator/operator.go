// Package operator keeps the per-chat allow-list of users who may issue
// ledger commands. The gateway checks it before anything reaches the engine;
// the engine itself never re-checks.
package operator

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAlreadyOperator = errors.New("user is already an operator")
	ErrNotOperator     = errors.New("user is not an operator")
)

type Operator struct {
	ChatID    int64     `json:"chat_id"`
	UserID    int64     `json:"user_id"`
	AddedBy   int64     `json:"added_by"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository interface {
	IsOperator(ctx context.Context, userID, chatID int64) (bool, error)
	Add(ctx context.Context, chatID, userID, addedBy int64) (*Operator, error)
	Remove(ctx context.Context, chatID, userID int64) error
	List(ctx context.Context, chatID int64) ([]Operator, error)
}
