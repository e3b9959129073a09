package ledger

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hieudm/groupledger/expr"
	"github.com/hieudm/groupledger/extract"
	"github.com/hieudm/groupledger/numfmt"
)

// Repository is the persistence contract the engine mutates through.
// Group returns (nil, nil) when the chat has no group yet. Entries returns
// only non-skipped entries of the given kinds after the cutoff, ordered by
// occurred_at ascending. Apply must be atomic.
type Repository interface {
	Group(ctx context.Context, chatID int64) (*Group, error)
	Entries(ctx context.Context, chatID int64, kinds []Kind, after time.Time) ([]Entry, error)
	Card(ctx context.Context, chatID int64, code string) (*Card, error)
	Cards(ctx context.Context, chatID int64) ([]Card, error)
	SetCardsHidden(ctx context.Context, chatID int64, codes []string, hidden bool) error
	Apply(ctx context.Context, m Mutation) error
}

// Engine is the command state machine. Commands for one chat are serialized
// behind a per-chat mutex; different chats proceed independently. Every
// multi-aggregate write goes through Repository.Apply in one transaction, so
// a crash mid-command never leaves remaining != total-paid.
type Engine struct {
	repo Repository
	now  func() time.Time

	mu    sync.Mutex
	chats map[int64]*sync.Mutex
}

func NewEngine(repo Repository) *Engine {
	return &Engine{
		repo:  repo,
		now:   time.Now,
		chats: make(map[int64]*sync.Mutex),
	}
}

func (e *Engine) chatLock(chatID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.chats[chatID]
	if !ok {
		l = &sync.Mutex{}
		e.chats[chatID] = l
	}
	return l
}

// Deposit records `+<expr> [card] [limit]`. A zero amount is a pure query:
// no entry, no aggregate change, current summary returned.
func (e *Engine) Deposit(ctx context.Context, chatID int64, exprStr, cardCode string, limit float64, meta Meta) (*Snapshot, error) {
	amount, err := expr.Eval(exprStr)
	if err != nil {
		return nil, err
	}

	l := e.chatLock(chatID)
	l.Lock()
	defer l.Unlock()

	g, err := e.repo.Group(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("loading group: %w", err)
	}
	if !g.Configured() {
		return nil, ErrRateNotConfigured
	}
	if amount == 0 {
		return e.snapshot(ctx, g)
	}

	target := convert(amount, g)
	now := e.now()

	next := *g
	next.TotalSource += amount
	next.TotalTarget += target
	next.RemainingTarget = next.TotalTarget - next.PaidTarget
	next.UpdatedAt = now

	entry := &Entry{
		ID:                 uuid.New(),
		ChatID:             chatID,
		Kind:               KindDeposit,
		SourceAmount:       amount,
		TargetAmount:       target,
		CardCode:           cardCode,
		CreditLimit:        limit,
		RateAtTime:         g.Rate,
		ExchangeRateAtTime: g.ExchangeRate,
		SenderLabel:        meta.SenderLabel,
		RawCommand:         meta.RawCommand,
		MessageRef:         meta.MessageRef,
		Detail:             depositDetail(amount, target, g),
		OccurredAt:         now,
	}

	m := Mutation{Group: &next, Entry: entry}
	if cardCode != "" {
		m.Card = &CardDelta{
			ChatID:     chatID,
			Code:       cardCode,
			TotalDelta: amount,
			Limit:      limit,
			Upsert:     true,
		}
	}
	if err := e.repo.Apply(ctx, m); err != nil {
		return nil, fmt.Errorf("applying deposit: %w", err)
	}
	return e.snapshot(ctx, &next)
}

// Withdraw records `-<expr> [card]`. Unlike deposit, a zero amount still
// writes a value-0 entry; operators rely on seeing it in the log.
func (e *Engine) Withdraw(ctx context.Context, chatID int64, exprStr, cardCode string, meta Meta) (*Snapshot, error) {
	amount, err := expr.Eval(exprStr)
	if err != nil {
		return nil, err
	}

	l := e.chatLock(chatID)
	l.Lock()
	defer l.Unlock()

	g, err := e.repo.Group(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("loading group: %w", err)
	}
	if !g.Configured() {
		return nil, ErrRateNotConfigured
	}

	target := convert(amount, g)
	now := e.now()

	next := *g
	next.TotalSource -= amount
	next.TotalTarget -= target
	next.RemainingTarget = next.TotalTarget - next.PaidTarget
	next.UpdatedAt = now

	entry := &Entry{
		ID:                 uuid.New(),
		ChatID:             chatID,
		Kind:               KindWithdraw,
		SourceAmount:       -amount,
		TargetAmount:       -target,
		CardCode:           cardCode,
		RateAtTime:         g.Rate,
		ExchangeRateAtTime: g.ExchangeRate,
		SenderLabel:        meta.SenderLabel,
		RawCommand:         meta.RawCommand,
		MessageRef:         meta.MessageRef,
		Detail:             withdrawDetail(amount, target, g),
		OccurredAt:         now,
	}

	m := Mutation{Group: &next, Entry: entry}
	if cardCode != "" {
		m.Card = &CardDelta{
			ChatID:     chatID,
			Code:       cardCode,
			TotalDelta: -amount,
			Upsert:     true,
		}
	}
	if err := e.repo.Apply(ctx, m); err != nil {
		return nil, fmt.Errorf("applying withdrawal: %w", err)
	}
	return e.snapshot(ctx, &next)
}

// Payout records a settlement in target currency. Zero and negative amounts
// are rejected; a card reference must name a card that already exists, a
// payout cannot fabricate one.
func (e *Engine) Payout(ctx context.Context, chatID int64, exprStr, cardCode string, meta Meta) (*Snapshot, error) {
	amount, err := expr.Eval(exprStr)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, ErrZeroAmount
	}
	if amount < 0 {
		return nil, ErrNegativeAmount
	}

	l := e.chatLock(chatID)
	l.Lock()
	defer l.Unlock()

	g, err := e.repo.Group(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("loading group: %w", err)
	}
	if !g.Configured() {
		return nil, ErrRateNotConfigured
	}
	if cardCode != "" {
		card, err := e.repo.Card(ctx, chatID, cardCode)
		if err != nil {
			return nil, fmt.Errorf("loading card: %w", err)
		}
		if card == nil {
			return nil, fmt.Errorf("%w: %s", ErrCardNotFound, cardCode)
		}
	}

	now := e.now()
	next := *g
	next.PaidTarget += amount
	next.RemainingTarget = next.TotalTarget - next.PaidTarget
	next.UpdatedAt = now

	entry := &Entry{
		ID:                 uuid.New(),
		ChatID:             chatID,
		Kind:               KindPayout,
		TargetAmount:       amount,
		CardCode:           cardCode,
		RateAtTime:         g.Rate,
		ExchangeRateAtTime: g.ExchangeRate,
		SenderLabel:        meta.SenderLabel,
		RawCommand:         meta.RawCommand,
		MessageRef:         meta.MessageRef,
		Detail:             numfmt.Amount(amount) + " " + CurrencyUnit,
		OccurredAt:         now,
	}

	m := Mutation{Group: &next, Entry: entry}
	if cardCode != "" {
		m.Card = &CardDelta{ChatID: chatID, Code: cardCode, PaidDelta: amount}
	}
	if err := e.repo.Apply(ctx, m); err != nil {
		return nil, fmt.Errorf("applying payout: %w", err)
	}
	return e.snapshot(ctx, &next)
}

// SetRates overwrites the fee rate and/or exchange rate, creating the group
// lazily on first use. Totals are untouched.
func (e *Engine) SetRates(ctx context.Context, chatID int64, rate, exchangeRate *float64, meta Meta) (*Snapshot, error) {
	l := e.chatLock(chatID)
	l.Lock()
	defer l.Unlock()

	g, err := e.repo.Group(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("loading group: %w", err)
	}
	now := e.now()
	if g == nil {
		g = &Group{ChatID: chatID, CreatedAt: now}
	}

	next := *g
	if rate != nil {
		next.Rate = *rate
	}
	if exchangeRate != nil {
		next.ExchangeRate = *exchangeRate
	}
	next.UpdatedAt = now

	entry := &Entry{
		ID:                 uuid.New(),
		ChatID:             chatID,
		Kind:               KindRateChange,
		RateAtTime:         next.Rate,
		ExchangeRateAtTime: next.ExchangeRate,
		SenderLabel:        meta.SenderLabel,
		RawCommand:         meta.RawCommand,
		Detail:             "rate " + numfmt.Rate(next.Rate) + "% fx " + numfmt.Amount(next.ExchangeRate),
		OccurredAt:         now,
	}
	if err := e.repo.Apply(ctx, Mutation{Group: &next, Entry: entry}); err != nil {
		return nil, fmt.Errorf("applying rate change: %w", err)
	}
	return e.snapshot(ctx, &next)
}

// Clear zeroes the running totals and starts a new display window. Rates
// survive; prior entries and cards are kept but fall outside the window.
func (e *Engine) Clear(ctx context.Context, chatID int64, meta Meta) (*Snapshot, error) {
	l := e.chatLock(chatID)
	l.Lock()
	defer l.Unlock()

	g, err := e.repo.Group(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("loading group: %w", err)
	}
	if g == nil {
		return nil, ErrRateNotConfigured
	}

	now := e.now()
	next := *g
	next.TotalSource = 0
	next.TotalTarget = 0
	next.PaidTarget = 0
	next.RemainingTarget = 0
	next.LastClearAt = now
	next.UpdatedAt = now

	entry := &Entry{
		ID:                 uuid.New(),
		ChatID:             chatID,
		Kind:               KindClear,
		RateAtTime:         g.Rate,
		ExchangeRateAtTime: g.ExchangeRate,
		SenderLabel:        meta.SenderLabel,
		RawCommand:         meta.RawCommand,
		Detail:             "cleared",
		OccurredAt:         now,
	}
	if err := e.repo.Apply(ctx, Mutation{Group: &next, Entry: entry}); err != nil {
		return nil, fmt.Errorf("applying clear: %w", err)
	}
	return e.snapshot(ctx, &next)
}

// Skip reverses the n-th visible entry of the current window, counted
// 1-based over deposits+withdrawals, or over payouts when payouts is true.
// The targeted entry is flagged skipped, its effect is subtracted from the
// aggregates, and a skip entry documents the reversal. One transaction.
func (e *Engine) Skip(ctx context.Context, chatID int64, n int, payouts bool, meta Meta) (*Snapshot, error) {
	l := e.chatLock(chatID)
	l.Lock()
	defer l.Unlock()

	g, err := e.repo.Group(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("loading group: %w", err)
	}
	if g == nil {
		return nil, ErrRateNotConfigured
	}

	kinds := []Kind{KindDeposit, KindWithdraw}
	if payouts {
		kinds = []Kind{KindPayout}
	}
	entries, err := e.repo.Entries(ctx, chatID, kinds, g.LastClearAt)
	if err != nil {
		return nil, fmt.Errorf("loading entries: %w", err)
	}
	if n < 1 || n > len(entries) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidID, n, len(entries))
	}
	target := entries[n-1]

	now := e.now()
	next := *g
	var delta *CardDelta
	switch target.Kind {
	case KindPayout:
		next.PaidTarget -= target.TargetAmount
		if target.CardCode != "" {
			delta = &CardDelta{ChatID: chatID, Code: target.CardCode, PaidDelta: -target.TargetAmount}
		}
	default:
		// Deposits store positive amounts and withdrawals negative ones,
		// so the inverse is uniformly "subtract what was stored".
		next.TotalSource -= target.SourceAmount
		next.TotalTarget -= target.TargetAmount
		if target.CardCode != "" {
			delta = &CardDelta{ChatID: chatID, Code: target.CardCode, TotalDelta: -target.SourceAmount}
		}
	}
	next.RemainingTarget = next.TotalTarget - next.PaidTarget
	next.UpdatedAt = now

	reason := "skipped by " + meta.SenderLabel + " at " + now.UTC().Format(time.RFC3339)
	entry := &Entry{
		ID:                 uuid.New(),
		ChatID:             chatID,
		Kind:               KindSkip,
		SourceAmount:       -target.SourceAmount,
		TargetAmount:       -target.TargetAmount,
		CardCode:           target.CardCode,
		RateAtTime:         g.Rate,
		ExchangeRateAtTime: g.ExchangeRate,
		SenderLabel:        meta.SenderLabel,
		RawCommand:         meta.RawCommand,
		Detail:             fmt.Sprintf("reversed #%d: %s", n, target.Detail),
		OccurredAt:         now,
	}

	m := Mutation{
		Group:    &next,
		Entry:    entry,
		Card:     delta,
		SkipMark: &SkipMark{EntryID: target.ID, Reason: reason},
	}
	if err := e.repo.Apply(ctx, m); err != nil {
		return nil, fmt.Errorf("applying skip: %w", err)
	}
	return e.snapshot(ctx, &next)
}

// SetAutoExtract stores the per-group auto-extraction template. The template
// is compiled up front so a broken one is rejected before it is saved.
func (e *Engine) SetAutoExtract(ctx context.Context, chatID int64, enabled bool, template string) error {
	if enabled && template != "" {
		if _, err := extract.CompileTemplate(template); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidExpression, err)
		}
	}

	l := e.chatLock(chatID)
	l.Lock()
	defer l.Unlock()

	g, err := e.repo.Group(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading group: %w", err)
	}
	now := e.now()
	if g == nil {
		g = &Group{ChatID: chatID, CreatedAt: now}
	}
	next := *g
	next.AutoExtract = enabled
	if template != "" {
		next.Template = template
	}
	next.UpdatedAt = now
	return e.repo.Apply(ctx, Mutation{Group: &next})
}

// SetGroupedDisplay toggles thousands separators in rendered summaries.
func (e *Engine) SetGroupedDisplay(ctx context.Context, chatID int64, grouped bool) error {
	l := e.chatLock(chatID)
	l.Lock()
	defer l.Unlock()

	g, err := e.repo.Group(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading group: %w", err)
	}
	now := e.now()
	if g == nil {
		g = &Group{ChatID: chatID, CreatedAt: now}
	}
	next := *g
	next.GroupedDisplay = grouped
	next.UpdatedAt = now
	return e.repo.Apply(ctx, Mutation{Group: &next})
}

// SetCardHidden hides or shows one card, or every card when code is AllCards.
// The returned slice lists the affected codes; empty is a valid outcome.
func (e *Engine) SetCardHidden(ctx context.Context, chatID int64, code string, hidden bool) ([]string, error) {
	l := e.chatLock(chatID)
	l.Lock()
	defer l.Unlock()

	var codes []string
	if code == AllCards {
		cards, err := e.repo.Cards(ctx, chatID)
		if err != nil {
			return nil, fmt.Errorf("loading cards: %w", err)
		}
		for _, c := range cards {
			codes = append(codes, c.Code)
		}
	} else {
		card, err := e.repo.Card(ctx, chatID, code)
		if err != nil {
			return nil, fmt.Errorf("loading card: %w", err)
		}
		if card == nil {
			return nil, fmt.Errorf("%w: %s", ErrCardNotFound, code)
		}
		codes = []string{card.Code}
	}
	if len(codes) == 0 {
		return []string{}, nil
	}
	if err := e.repo.SetCardsHidden(ctx, chatID, codes, hidden); err != nil {
		return nil, fmt.Errorf("updating cards: %w", err)
	}
	return codes, nil
}

// HandleFreeText runs a non-command message through the group's template.
// A match is funneled into the deposit path with no special casing, so all
// deposit validation and atomicity applies. (nil, nil) means "not for us".
func (e *Engine) HandleFreeText(ctx context.Context, chatID int64, text string, meta Meta) (*Snapshot, error) {
	g, err := e.repo.Group(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("loading group: %w", err)
	}
	if g == nil || !g.AutoExtract || g.Template == "" {
		return nil, nil
	}
	tpl, err := extract.CompileTemplate(g.Template)
	if err != nil {
		return nil, nil
	}
	amount, ok := tpl.Match(text)
	if !ok {
		return nil, nil
	}
	if meta.RawCommand == "" {
		meta.RawCommand = text
	}
	return e.Deposit(ctx, chatID, strconv.FormatFloat(amount, 'f', -1, 64), "", 0, meta)
}

// Summary returns the current snapshot without mutating anything.
func (e *Engine) Summary(ctx context.Context, chatID int64) (*Snapshot, error) {
	g, err := e.repo.Group(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("loading group: %w", err)
	}
	if g == nil {
		return nil, ErrRateNotConfigured
	}
	return e.snapshot(ctx, g)
}

func convert(amount float64, g *Group) float64 {
	return amount / g.ExchangeRate * (1 - g.Rate/100)
}

func depositDetail(amount, target float64, g *Group) string {
	return fmt.Sprintf("%s / %s * %s = %s %s",
		numfmt.Amount(amount),
		numfmt.Amount(g.ExchangeRate),
		numfmt.Rate(1-g.Rate/100),
		numfmt.Amount(target),
		CurrencyUnit,
	)
}

func withdrawDetail(amount, target float64, g *Group) string {
	return fmt.Sprintf("-%s / %s * %s = -%s %s",
		numfmt.Amount(amount),
		numfmt.Amount(g.ExchangeRate),
		numfmt.Rate(1-g.Rate/100),
		numfmt.Amount(target),
		CurrencyUnit,
	)
}
