package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/hieudm/groupledger/numfmt"
)

// Window sizes for the summary, independent of history length.
const (
	depositWindowSize = 5
	paymentWindowSize = 3
)

// Line is one display row. Rank is the 1-based position within the full
// non-skipped post-clear subset; it is computed per query and never stored.
type Line struct {
	Rank       int       `json:"rank"`
	Detail     string    `json:"detail"`
	Sender     string    `json:"sender,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Snapshot is the structured summary handed to the rendering layer after
// every mutation. It is complete: the renderer needs nothing else.
type Snapshot struct {
	ChatID          int64     `json:"chat_id"`
	Date            time.Time `json:"date"`
	Rate            float64   `json:"rate"`
	ExchangeRate    float64   `json:"exchange_rate"`
	TotalSource     float64   `json:"total_source"`
	TotalTarget     float64   `json:"total_target"`
	PaidTarget      float64   `json:"paid_target"`
	RemainingTarget float64   `json:"remaining_target"`
	CurrencyUnit    string    `json:"currency_unit"`
	GroupedDisplay  bool      `json:"grouped_display"`
	DepositCount    int       `json:"deposit_count"`
	PaymentCount    int       `json:"payment_count"`
	DepositWindow   []Line    `json:"deposit_window"`
	PaymentWindow   []Line    `json:"payment_window"`
	Cards           []string  `json:"cards"`
}

func (e *Engine) snapshot(ctx context.Context, g *Group) (*Snapshot, error) {
	deposits, err := e.repo.Entries(ctx, g.ChatID, []Kind{KindDeposit, KindWithdraw}, g.LastClearAt)
	if err != nil {
		return nil, fmt.Errorf("loading deposit entries: %w", err)
	}
	payments, err := e.repo.Entries(ctx, g.ChatID, []Kind{KindPayout}, g.LastClearAt)
	if err != nil {
		return nil, fmt.Errorf("loading payout entries: %w", err)
	}
	cards, err := e.repo.Cards(ctx, g.ChatID)
	if err != nil {
		return nil, fmt.Errorf("loading cards: %w", err)
	}

	return &Snapshot{
		ChatID:          g.ChatID,
		Date:            e.now(),
		Rate:            g.Rate,
		ExchangeRate:    g.ExchangeRate,
		TotalSource:     g.TotalSource,
		TotalTarget:     g.TotalTarget,
		PaidTarget:      g.PaidTarget,
		RemainingTarget: g.RemainingTarget,
		CurrencyUnit:    CurrencyUnit,
		GroupedDisplay:  g.GroupedDisplay,
		DepositCount:    len(deposits),
		PaymentCount:    len(payments),
		DepositWindow:   window(deposits, depositWindowSize),
		PaymentWindow:   window(payments, paymentWindowSize),
		Cards:           CardLines(g, cards),
	}, nil
}

// window keeps the last size entries, ranked against the whole subset.
func window(entries []Entry, size int) []Line {
	start := 0
	if len(entries) > size {
		start = len(entries) - size
	}
	lines := make([]Line, 0, len(entries)-start)
	for i := start; i < len(entries); i++ {
		lines = append(lines, Line{
			Rank:       i + 1,
			Detail:     entries[i].Detail,
			Sender:     entries[i].SenderLabel,
			OccurredAt: entries[i].OccurredAt,
		})
	}
	return lines
}

// CardLines formats the visible cards. The remaining-balance segment only
// appears in net settlement mode (rate 0, exchange rate 1), where card
// totals are already in target units.
func CardLines(g *Group, cards []Card) []string {
	netMode := g.Rate == 0 && g.ExchangeRate == 1
	lines := make([]string, 0, len(cards))
	for _, c := range cards {
		if c.Hidden {
			continue
		}
		line := c.Code + "=" + numfmt.Amount(c.Total)
		if c.Limit > 0 {
			line += "|remaining_limit:" + numfmt.Amount(c.Limit-c.Total)
		}
		if netMode {
			line += "|remaining_balance:" + numfmt.Amount(c.Total-c.Paid)
		}
		lines = append(lines, line)
	}
	return lines
}
