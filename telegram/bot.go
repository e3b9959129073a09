// Package telegram is the chat gateway. It parses operator commands,
// enforces the operator allow-list, and hands already-isolated tokens to the
// ledger engine; rendering the returned snapshot back to chat markup also
// lives here. The engine never sees Telegram types.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/hieudm/groupledger/audit"
	"github.com/hieudm/groupledger/cache"
	"github.com/hieudm/groupledger/extract"
	"github.com/hieudm/groupledger/ledger"
	"github.com/hieudm/groupledger/operator"
)

// Ledger is the slice of the engine the gateway drives.
type Ledger interface {
	Deposit(ctx context.Context, chatID int64, expr, cardCode string, limit float64, meta ledger.Meta) (*ledger.Snapshot, error)
	Withdraw(ctx context.Context, chatID int64, expr, cardCode string, meta ledger.Meta) (*ledger.Snapshot, error)
	Payout(ctx context.Context, chatID int64, expr, cardCode string, meta ledger.Meta) (*ledger.Snapshot, error)
	SetRates(ctx context.Context, chatID int64, rate, exchangeRate *float64, meta ledger.Meta) (*ledger.Snapshot, error)
	Clear(ctx context.Context, chatID int64, meta ledger.Meta) (*ledger.Snapshot, error)
	Skip(ctx context.Context, chatID int64, n int, payouts bool, meta ledger.Meta) (*ledger.Snapshot, error)
	SetAutoExtract(ctx context.Context, chatID int64, enabled bool, template string) error
	SetGroupedDisplay(ctx context.Context, chatID int64, grouped bool) error
	SetCardHidden(ctx context.Context, chatID int64, code string, hidden bool) ([]string, error)
	HandleFreeText(ctx context.Context, chatID int64, text string, meta ledger.Meta) (*ledger.Snapshot, error)
	Summary(ctx context.Context, chatID int64) (*ledger.Snapshot, error)
}

// ImageExtractor turns a photo plus caption into a deposit amount. Errors
// are treated as "no amount found"; vision failures never break a chat.
type ImageExtractor interface {
	ExtractAmount(ctx context.Context, fileURL, caption string) (float64, bool, error)
}

// CaptionExtractor is the default ImageExtractor: it ignores the image and
// runs bank-notification extraction over the caption only.
type CaptionExtractor struct{}

func (CaptionExtractor) ExtractAmount(ctx context.Context, fileURL, caption string) (float64, bool, error) {
	if caption == "" {
		return 0, false, nil
	}
	v, ok := extract.BankAmount(caption)
	return v, ok, nil
}

type Bot struct {
	bot     *tele.Bot
	engine  Ledger
	ops     operator.Repository
	auditor *audit.Worker
	files   *cache.TTLCache
	images  ImageExtractor
}

func New(token string, engine Ledger, ops operator.Repository, auditor *audit.Worker, files *cache.TTLCache, images ImageExtractor) (*Bot, error) {
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	bot := &Bot{bot: b, engine: engine, ops: ops, auditor: auditor, files: files, images: images}
	b.Handle(tele.OnText, bot.onText)
	b.Handle(tele.OnPhoto, bot.onPhoto)
	return bot, nil
}

// Start begins long polling and blocks until Stop.
func (b *Bot) Start() {
	slog.Info("telegram bot polling")
	b.bot.Start()
}

func (b *Bot) Stop() {
	b.bot.Stop()
}

func (b *Bot) onText(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Chat().ID
	meta := b.meta(c)

	cmd, ok := parseCommand(c.Text())
	if !ok {
		// Not a command: run it through the group's auto-extraction
		// template. Bank forwarders are not operators, so no gating here.
		snap, err := b.engine.HandleFreeText(ctx, chatID, c.Text(), meta)
		if err != nil {
			slog.Error("auto-extract dispatch failed", "chat_id", chatID, "error", err)
			return c.Reply(errorMessage(err))
		}
		if snap == nil {
			return nil
		}
		b.record("ledger.auto_deposit", chatID, meta)
		return c.Reply(renderSnapshot(snap), tele.ModeHTML)
	}

	if cmd.kind != cmdSummary {
		allowed, err := b.allowed(ctx, c, cmd)
		if err != nil {
			slog.Error("operator lookup failed", "chat_id", chatID, "error", err)
			return c.Reply("Database error, try again.")
		}
		if !allowed {
			return nil
		}
	}
	return b.dispatch(ctx, c, cmd, meta)
}

func (b *Bot) dispatch(ctx context.Context, c tele.Context, cmd *command, meta ledger.Meta) error {
	chatID := c.Chat().ID

	var snap *ledger.Snapshot
	var err error
	switch cmd.kind {
	case cmdDeposit:
		snap, err = b.engine.Deposit(ctx, chatID, cmd.expr, cmd.card, cmd.limit, meta)
		b.recordIf(err, "ledger.deposit", chatID, meta)
	case cmdWithdraw:
		snap, err = b.engine.Withdraw(ctx, chatID, cmd.expr, cmd.card, meta)
		b.recordIf(err, "ledger.withdraw", chatID, meta)
	case cmdPayout:
		snap, err = b.engine.Payout(ctx, chatID, cmd.expr, cmd.card, meta)
		b.recordIf(err, "ledger.payout", chatID, meta)
	case cmdSkip:
		snap, err = b.engine.Skip(ctx, chatID, cmd.n, cmd.payouts, meta)
		b.recordIf(err, "ledger.skip", chatID, meta)
	case cmdSetRates:
		snap, err = b.engine.SetRates(ctx, chatID, cmd.rate, cmd.fx, meta)
		b.recordIf(err, "ledger.rate_change", chatID, meta)
	case cmdClear:
		snap, err = b.engine.Clear(ctx, chatID, meta)
		b.recordIf(err, "ledger.clear", chatID, meta)
	case cmdSummary:
		snap, err = b.engine.Summary(ctx, chatID)
	case cmdHideCard, cmdShowCard:
		hidden := cmd.kind == cmdHideCard
		var affected []string
		affected, err = b.engine.SetCardHidden(ctx, chatID, cmd.card, hidden)
		if err != nil {
			break
		}
		b.record("ledger.card_visibility", chatID, meta)
		if len(affected) == 0 {
			return c.Reply("No cards in this group yet.")
		}
		verb := "Hidden"
		if !hidden {
			verb = "Shown"
		}
		return c.Reply(fmt.Sprintf("%s: %v", verb, affected))
	case cmdTemplate:
		err = b.engine.SetAutoExtract(ctx, chatID, true, cmd.arg)
		if err == nil {
			b.record("ledger.template_set", chatID, meta)
			return c.Reply("Auto-extraction template saved.")
		}
	case cmdTemplateOff:
		err = b.engine.SetAutoExtract(ctx, chatID, false, "")
		if err == nil {
			return c.Reply("Auto-extraction disabled.")
		}
	case cmdGrouped:
		err = b.engine.SetGroupedDisplay(ctx, chatID, cmd.on)
		if err == nil {
			return c.Reply("Display format updated.")
		}
	case cmdAddOperator:
		_, err = b.ops.Add(ctx, chatID, cmd.userID, c.Sender().ID)
		if err == nil {
			b.record("operator.added", chatID, meta)
			return c.Reply("Operator added.")
		}
		if errors.Is(err, operator.ErrAlreadyOperator) {
			return c.Reply("Already an operator.")
		}
	case cmdDelOperator:
		err = b.ops.Remove(ctx, chatID, cmd.userID)
		if err == nil {
			b.record("operator.removed", chatID, meta)
			return c.Reply("Operator removed.")
		}
		if errors.Is(err, operator.ErrNotOperator) {
			return c.Reply("Not an operator.")
		}
	case cmdListOperators:
		var ops []operator.Operator
		ops, err = b.ops.List(ctx, chatID)
		if err == nil {
			if len(ops) == 0 {
				return c.Reply("No operators configured.")
			}
			msg := "Operators:"
			for _, op := range ops {
				msg += "\n" + strconv.FormatInt(op.UserID, 10)
			}
			return c.Reply(msg)
		}
	}

	if err != nil {
		slog.Info("command rejected", "chat_id", chatID, "error", err)
		return c.Reply(errorMessage(err))
	}
	if snap == nil {
		return nil
	}
	return c.Reply(renderSnapshot(snap), tele.ModeHTML)
}

func (b *Bot) onPhoto(c tele.Context) error {
	ctx := context.Background()
	chatID := c.Chat().ID
	meta := b.meta(c)

	allowed, err := b.ops.IsOperator(ctx, c.Sender().ID, chatID)
	if err != nil || !allowed {
		return nil
	}

	caption := c.Message().Caption
	fileURL := b.fileURL(c.Message().Photo)
	amount, ok, err := b.images.ExtractAmount(ctx, fileURL, caption)
	if err != nil || !ok || amount <= 0 {
		// Vision errors count as "no amount found".
		return c.Reply("No amount found in this image.")
	}

	snap, err := b.engine.Deposit(ctx, chatID, strconv.FormatFloat(amount, 'f', -1, 64), "", 0, meta)
	if err != nil {
		return c.Reply(errorMessage(err))
	}
	b.record("ledger.image_deposit", chatID, meta)
	return c.Reply(renderSnapshot(snap), tele.ModeHTML)
}

// fileURL resolves and caches the download URL for a photo. A miss costs a
// Bot API round trip, so bursts of the same receipt stay cheap.
func (b *Bot) fileURL(photo *tele.Photo) string {
	if photo == nil {
		return ""
	}
	if url, ok := b.files.Get(photo.FileID); ok {
		return url
	}
	f, err := b.bot.FileByID(photo.FileID)
	if err != nil {
		slog.Warn("file lookup failed", "file_id", photo.FileID, "error", err)
		return ""
	}
	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", b.bot.Token, f.FilePath)
	b.files.Set(photo.FileID, url)
	return url
}

// allowed gates mutating commands on the operator list. The first addop in a
// chat bootstraps the list: with no operators configured yet, anyone in the
// chat may claim it.
func (b *Bot) allowed(ctx context.Context, c tele.Context, cmd *command) (bool, error) {
	chatID := c.Chat().ID
	ok, err := b.ops.IsOperator(ctx, c.Sender().ID, chatID)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	if cmd.kind == cmdAddOperator {
		ops, err := b.ops.List(ctx, chatID)
		if err != nil {
			return false, err
		}
		return len(ops) == 0, nil
	}
	return false, nil
}

func (b *Bot) meta(c tele.Context) ledger.Meta {
	return ledger.Meta{
		SenderLabel: senderLabel(c.Sender()),
		RawCommand:  c.Text(),
		MessageRef:  fmt.Sprintf("%d/%d", c.Chat().ID, c.Message().ID),
	}
}

func senderLabel(u *tele.User) string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.FirstName
}

func (b *Bot) record(action string, chatID int64, meta ledger.Meta) {
	b.auditor.Log(audit.NewRecord(
		audit.WithAction(action),
		audit.WithData(map[string]string{"command": meta.RawCommand}),
		audit.WithMetadata(map[string]string{
			"chat_id": strconv.FormatInt(chatID, 10),
			"sender":  meta.SenderLabel,
			"message": meta.MessageRef,
		}),
	))
}

func (b *Bot) recordIf(err error, action string, chatID int64, meta ledger.Meta) {
	if err == nil {
		b.record(action, chatID, meta)
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInvalidExpression):
		return "Invalid amount expression."
	case errors.Is(err, ledger.ErrRateNotConfigured):
		return "Set the exchange rate first: fx <value>"
	case errors.Is(err, ledger.ErrCardNotFound):
		return "Unknown card."
	case errors.Is(err, ledger.ErrInvalidID):
		return "No entry with that number."
	case errors.Is(err, ledger.ErrZeroAmount), errors.Is(err, ledger.ErrNegativeAmount):
		return "Payout must be a positive amount."
	default:
		return "Database error, try again."
	}
}
