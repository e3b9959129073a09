package telegram

import (
	"fmt"
	"strings"

	"github.com/hieudm/groupledger/ledger"
	"github.com/hieudm/groupledger/numfmt"
)

// renderSnapshot turns the engine's structured snapshot into the chat reply.
// Number formatting honors the group's grouped-display setting.
func renderSnapshot(s *ledger.Snapshot) string {
	amount := numfmt.Amount
	if s.GroupedDisplay {
		amount = numfmt.GroupedAmount
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", s.Date.Format("02/01/2006 15:04"))
	fmt.Fprintf(&b, "Rate: %s%% | FX: %s\n", numfmt.Rate(s.Rate), numfmt.Amount(s.ExchangeRate))

	fmt.Fprintf(&b, "\n<b>Deposits</b> (%d)\n", s.DepositCount)
	if len(s.DepositWindow) == 0 {
		b.WriteString("none\n")
	}
	for _, line := range s.DepositWindow {
		fmt.Fprintf(&b, "%d. %s", line.Rank, line.Detail)
		if line.Sender != "" {
			fmt.Fprintf(&b, " (%s)", line.Sender)
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "\n<b>Payouts</b> (%d)\n", s.PaymentCount)
	if len(s.PaymentWindow) == 0 {
		b.WriteString("none\n")
	}
	for _, line := range s.PaymentWindow {
		fmt.Fprintf(&b, "%d. %s", line.Rank, line.Detail)
		if line.Sender != "" {
			fmt.Fprintf(&b, " (%s)", line.Sender)
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "\nDeposited: %s\n", amount(s.TotalSource))
	fmt.Fprintf(&b, "Converted: %s %s\n", amount(s.TotalTarget), s.CurrencyUnit)
	fmt.Fprintf(&b, "Paid: %s %s\n", amount(s.PaidTarget), s.CurrencyUnit)
	fmt.Fprintf(&b, "Remaining: %s %s\n", amount(s.RemainingTarget), s.CurrencyUnit)

	if len(s.Cards) > 0 {
		b.WriteString("\n<b>Cards</b>\n")
		for _, line := range s.Cards {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
