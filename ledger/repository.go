package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hieudm/groupledger/store"
)

type repository struct {
	db *store.DB
}

func NewRepository(db *store.DB) *repository {
	return &repository{db: db}
}

func (r *repository) Group(ctx context.Context, chatID int64) (*Group, error) {
	query := r.db.Rebind(`SELECT chat_id, total_source, total_target, paid_target, remaining_target,
		rate, exchange_rate, last_clear_at, auto_extract, template, grouped_display, created_at, updated_at
		FROM groups WHERE chat_id = $1`)

	var g Group
	err := r.db.QueryRowContext(ctx, query, chatID).Scan(
		&g.ChatID,
		&g.TotalSource,
		&g.TotalTarget,
		&g.PaidTarget,
		&g.RemainingTarget,
		&g.Rate,
		&g.ExchangeRate,
		&g.LastClearAt,
		&g.AutoExtract,
		&g.Template,
		&g.GroupedDisplay,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying group: %w", err)
	}
	return &g, nil
}

func (r *repository) Entries(ctx context.Context, chatID int64, kinds []Kind, after time.Time) ([]Entry, error) {
	placeholders := make([]string, len(kinds))
	args := []any{chatID, after}
	for i, k := range kinds {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, string(k))
	}
	query := r.db.Rebind(fmt.Sprintf(`SELECT id, chat_id, kind, source_amount, target_amount,
		card_code, credit_limit, rate_at_time, exchange_rate_at_time, sender_label, raw_command,
		detail, message_ref, skipped, skip_reason, occurred_at
		FROM entries
		WHERE chat_id = $1 AND occurred_at > $2 AND skipped = FALSE AND kind IN (%s)
		ORDER BY occurred_at ASC, id ASC`, strings.Join(placeholders, ", ")))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(
			&e.ID,
			&e.ChatID,
			&e.Kind,
			&e.SourceAmount,
			&e.TargetAmount,
			&e.CardCode,
			&e.CreditLimit,
			&e.RateAtTime,
			&e.ExchangeRateAtTime,
			&e.SenderLabel,
			&e.RawCommand,
			&e.Detail,
			&e.MessageRef,
			&e.Skipped,
			&e.SkipReason,
			&e.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) Card(ctx context.Context, chatID int64, code string) (*Card, error) {
	query := r.db.Rebind(`SELECT chat_id, code, total, paid, card_limit, hidden, updated_at
		FROM cards WHERE chat_id = $1 AND code = $2`)

	var c Card
	err := r.db.QueryRowContext(ctx, query, chatID, code).Scan(
		&c.ChatID, &c.Code, &c.Total, &c.Paid, &c.Limit, &c.Hidden, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying card: %w", err)
	}
	return &c, nil
}

func (r *repository) Cards(ctx context.Context, chatID int64) ([]Card, error) {
	query := r.db.Rebind(`SELECT chat_id, code, total, paid, card_limit, hidden, updated_at
		FROM cards WHERE chat_id = $1 ORDER BY code ASC`)

	rows, err := r.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("querying cards: %w", err)
	}
	defer rows.Close()

	var cards []Card
	for rows.Next() {
		var c Card
		if err := rows.Scan(&c.ChatID, &c.Code, &c.Total, &c.Paid, &c.Limit, &c.Hidden, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning card: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (r *repository) SetCardsHidden(ctx context.Context, chatID int64, codes []string, hidden bool) error {
	placeholders := make([]string, len(codes))
	args := []any{hidden, chatID}
	for i, code := range codes {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, code)
	}
	query := r.db.Rebind(fmt.Sprintf(
		`UPDATE cards SET hidden = $1 WHERE chat_id = $2 AND code IN (%s)`,
		strings.Join(placeholders, ", ")))
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// Apply writes one mutation in a single transaction: group upsert, optional
// entry append, optional card delta, optional skip mark. Any failure rolls
// the whole thing back.
func (r *repository) Apply(ctx context.Context, m Mutation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if m.Group != nil {
		if err := r.upsertGroup(ctx, tx, m.Group); err != nil {
			return err
		}
	}
	if m.Entry != nil {
		if err := r.insertEntry(ctx, tx, m.Entry); err != nil {
			return err
		}
	}
	if m.Card != nil {
		if err := r.applyCardDelta(ctx, tx, m.Card); err != nil {
			return err
		}
	}
	if m.SkipMark != nil {
		if err := r.markSkipped(ctx, tx, m.SkipMark); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *repository) upsertGroup(ctx context.Context, tx *sql.Tx, g *Group) error {
	query := r.db.Rebind(`INSERT INTO groups (chat_id, total_source, total_target, paid_target,
		remaining_target, rate, exchange_rate, last_clear_at, auto_extract, template,
		grouped_display, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (chat_id) DO UPDATE SET
			total_source = excluded.total_source,
			total_target = excluded.total_target,
			paid_target = excluded.paid_target,
			remaining_target = excluded.remaining_target,
			rate = excluded.rate,
			exchange_rate = excluded.exchange_rate,
			last_clear_at = excluded.last_clear_at,
			auto_extract = excluded.auto_extract,
			template = excluded.template,
			grouped_display = excluded.grouped_display,
			updated_at = excluded.updated_at`)
	_, err := tx.ExecContext(ctx, query,
		g.ChatID, g.TotalSource, g.TotalTarget, g.PaidTarget, g.RemainingTarget,
		g.Rate, g.ExchangeRate, g.LastClearAt, g.AutoExtract, g.Template,
		g.GroupedDisplay, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting group: %w", err)
	}
	return nil
}

func (r *repository) insertEntry(ctx context.Context, tx *sql.Tx, e *Entry) error {
	query := r.db.Rebind(`INSERT INTO entries (id, chat_id, kind, source_amount, target_amount,
		card_code, credit_limit, rate_at_time, exchange_rate_at_time, sender_label, raw_command,
		detail, message_ref, skipped, skip_reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`)
	_, err := tx.ExecContext(ctx, query,
		e.ID, e.ChatID, string(e.Kind), e.SourceAmount, e.TargetAmount,
		e.CardCode, e.CreditLimit, e.RateAtTime, e.ExchangeRateAtTime, e.SenderLabel,
		e.RawCommand, e.Detail, e.MessageRef, e.Skipped, e.SkipReason, e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}
	return nil
}

func (r *repository) applyCardDelta(ctx context.Context, tx *sql.Tx, d *CardDelta) error {
	now := time.Now().UTC()
	if d.Upsert {
		query := r.db.Rebind(`INSERT INTO cards (chat_id, code, total, paid, card_limit, hidden, updated_at)
			VALUES ($1, $2, $3, $4, $5, FALSE, $6)
			ON CONFLICT (chat_id, code) DO UPDATE SET
				total = cards.total + excluded.total,
				paid = cards.paid + excluded.paid,
				card_limit = CASE WHEN excluded.card_limit > 0 THEN excluded.card_limit ELSE cards.card_limit END,
				updated_at = excluded.updated_at`)
		_, err := tx.ExecContext(ctx, query, d.ChatID, d.Code, d.TotalDelta, d.PaidDelta, d.Limit, now)
		if err != nil {
			return fmt.Errorf("upserting card: %w", err)
		}
		return nil
	}

	query := r.db.Rebind(`UPDATE cards SET total = total + $1, paid = paid + $2, updated_at = $3
		WHERE chat_id = $4 AND code = $5`)
	res, err := tx.ExecContext(ctx, query, d.TotalDelta, d.PaidDelta, now, d.ChatID, d.Code)
	if err != nil {
		return fmt.Errorf("updating card: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating card: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrCardNotFound, d.Code)
	}
	return nil
}

func (r *repository) markSkipped(ctx context.Context, tx *sql.Tx, mark *SkipMark) error {
	query := r.db.Rebind(`UPDATE entries SET skipped = TRUE, skip_reason = $1
		WHERE id = $2 AND skipped = FALSE`)
	res, err := tx.ExecContext(ctx, query, mark.Reason, mark.EntryID)
	if err != nil {
		return fmt.Errorf("marking entry skipped: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking entry skipped: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: entry already skipped or missing", ErrInvalidID)
	}
	return nil
}
