// Package ledger holds the group exchange book: running totals per chat, an
// append-only entry log, and per-card sub-totals. All mutation goes through
// the Engine so the three aggregates never drift apart.
package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hieudm/groupledger/expr"
)

type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdraw   Kind = "withdraw"
	KindPayout     Kind = "payout"
	KindClear      Kind = "clear"
	KindSkip       Kind = "skip"
	KindRateChange Kind = "rate_change"
)

// AllCards is the card code wildcard accepted by hide/show commands.
const AllCards = "ALL"

// CurrencyUnit is the settlement currency shown in summaries.
const CurrencyUnit = "USDT"

// Group is the authoritative running state for one chat. RemainingTarget is
// derived: it is recomputed from TotalTarget-PaidTarget inside every
// mutation and never written independently.
type Group struct {
	ChatID          int64     `json:"chat_id"`
	TotalSource     float64   `json:"total_source"`
	TotalTarget     float64   `json:"total_target"`
	PaidTarget      float64   `json:"paid_target"`
	RemainingTarget float64   `json:"remaining_target"`
	Rate            float64   `json:"rate"`
	ExchangeRate    float64   `json:"exchange_rate"`
	LastClearAt     time.Time `json:"last_clear_at"`
	AutoExtract     bool      `json:"auto_extract"`
	Template        string    `json:"template,omitempty"`
	GroupedDisplay  bool      `json:"grouped_display"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Configured reports whether deposits can be converted yet.
func (g *Group) Configured() bool {
	return g != nil && g.ExchangeRate > 0
}

// Entry is one ledger event. Withdrawals carry negative amounts so that the
// inverse of any deposit-like entry is always "subtract what was stored".
// Skipped entries stay on record forever; they are only excluded from
// aggregates and display.
type Entry struct {
	ID                 uuid.UUID `json:"id"`
	ChatID             int64     `json:"chat_id"`
	Kind               Kind      `json:"kind"`
	SourceAmount       float64   `json:"source_amount"`
	TargetAmount       float64   `json:"target_amount"`
	CardCode           string    `json:"card_code,omitempty"`
	CreditLimit        float64   `json:"credit_limit,omitempty"`
	RateAtTime         float64   `json:"rate_at_time"`
	ExchangeRateAtTime float64   `json:"exchange_rate_at_time"`
	SenderLabel        string    `json:"sender_label,omitempty"`
	RawCommand         string    `json:"raw_command,omitempty"`
	Detail             string    `json:"detail"`
	MessageRef         string    `json:"message_ref,omitempty"`
	Skipped            bool      `json:"skipped"`
	SkipReason         string    `json:"skip_reason,omitempty"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// Card is a per-chat sub-ledger keyed by chatID+code. Total may go negative;
// it is a running balance, not a floor.
type Card struct {
	ChatID    int64     `json:"chat_id"`
	Code      string    `json:"code"`
	Total     float64   `json:"total"`
	Paid      float64   `json:"paid"`
	Limit     float64   `json:"limit,omitempty"`
	Hidden    bool      `json:"hidden"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	// ErrInvalidExpression re-exports the evaluator's sentinel so callers
	// can match every ledger failure against one package.
	ErrInvalidExpression = expr.ErrInvalidExpression

	ErrRateNotConfigured = errors.New("exchange rate not configured")
	ErrCardNotFound      = errors.New("card not found")
	ErrInvalidID         = errors.New("entry id out of range")
	ErrZeroAmount        = errors.New("amount must not be zero")
	ErrNegativeAmount    = errors.New("amount must be positive")
)

// Meta carries who sent a command and where, for the audit columns.
type Meta struct {
	SenderLabel string
	RawCommand  string
	MessageRef  string
}

// CardDelta is the card half of an atomic mutation. When Upsert is false the
// card row must already exist; the engine checks existence beforehand under
// the per-chat lock.
type CardDelta struct {
	ChatID     int64
	Code       string
	TotalDelta float64
	PaidDelta  float64
	Limit      float64 // applied only when > 0
	Upsert     bool
}

// SkipMark flips an existing entry to skipped. It is written in the same
// transaction as the inverse aggregate update, never alone.
type SkipMark struct {
	EntryID uuid.UUID
	Reason  string
}

// Mutation is one atomic multi-aggregate write: the new group state, an
// optional entry append, an optional card delta, and an optional skip mark.
// A repository applies all parts in a single transaction or none.
type Mutation struct {
	Group    *Group
	Entry    *Entry
	Card     *CardDelta
	SkipMark *SkipMark
}
