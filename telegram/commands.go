package telegram

import (
	"strconv"
	"strings"
)

type commandKind int

const (
	cmdNone commandKind = iota
	cmdDeposit
	cmdWithdraw
	cmdPayout
	cmdSkip
	cmdSetRates
	cmdClear
	cmdHideCard
	cmdShowCard
	cmdTemplate
	cmdTemplateOff
	cmdGrouped
	cmdSummary
	cmdAddOperator
	cmdDelOperator
	cmdListOperators
)

// payoutMarkers are the two accepted payout prefixes.
var payoutMarkers = []string{"!", "下发"}

type command struct {
	kind    commandKind
	expr    string
	card    string
	limit   float64
	n       int
	payouts bool
	rate    *float64
	fx      *float64
	arg     string
	on      bool
	userID  int64
}

// parseCommand recognizes the operator vocabulary. Anything it does not
// recognize is free text and goes to the auto-extraction path instead.
func parseCommand(text string) (*command, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	if strings.HasPrefix(text, "+") {
		c := &command{kind: cmdDeposit}
		parseAmountArgs(text[1:], c, true)
		return c, true
	}
	if strings.HasPrefix(text, "-") {
		c := &command{kind: cmdWithdraw}
		parseAmountArgs(text[1:], c, false)
		return c, true
	}
	for _, marker := range payoutMarkers {
		if strings.HasPrefix(text, marker) {
			c := &command{kind: cmdPayout}
			parseAmountArgs(text[len(marker):], c, false)
			return c, true
		}
	}

	fields := strings.Fields(text)
	head := strings.ToLower(fields[0])
	switch head {
	case "skip", "撤回":
		if len(fields) != 2 {
			return nil, false
		}
		arg := fields[1]
		c := &command{kind: cmdSkip}
		if strings.HasPrefix(arg, "!") {
			c.payouts = true
			arg = arg[1:]
		}
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, false
		}
		c.n = n
		return c, true
	case "rate", "费率", "fx", "汇率":
		c := &command{kind: cmdSetRates}
		if !parseRateArgs(fields, c) {
			return nil, false
		}
		return c, true
	case "clear", "清空":
		return &command{kind: cmdClear}, true
	case "hide", "show":
		if len(fields) != 2 {
			return nil, false
		}
		kind := cmdHideCard
		if head == "show" {
			kind = cmdShowCard
		}
		return &command{kind: kind, card: strings.ToUpper(fields[1])}, true
	case "template":
		rest := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
		if strings.EqualFold(rest, "off") {
			return &command{kind: cmdTemplateOff}, true
		}
		if rest == "" {
			return nil, false
		}
		return &command{kind: cmdTemplate, arg: rest}, true
	case "grouped":
		if len(fields) != 2 {
			return nil, false
		}
		switch strings.ToLower(fields[1]) {
		case "on":
			return &command{kind: cmdGrouped, on: true}, true
		case "off":
			return &command{kind: cmdGrouped, on: false}, true
		}
		return nil, false
	case "summary", "账单", "bill":
		return &command{kind: cmdSummary}, true
	case "addop", "delop":
		if len(fields) != 2 {
			return nil, false
		}
		userID, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, false
		}
		kind := cmdAddOperator
		if head == "delop" {
			kind = cmdDelOperator
		}
		return &command{kind: kind, userID: userID}, true
	case "ops":
		return &command{kind: cmdListOperators}, true
	}
	return nil, false
}

// parseAmountArgs splits "<expr> [card] [limit]". The expression is the
// first token; the router only isolates tokens, validation belongs to the
// engine's evaluator.
func parseAmountArgs(rest string, c *command, withLimit bool) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return
	}
	c.expr = fields[0]
	if len(fields) > 1 {
		c.card = strings.ToUpper(fields[1])
	}
	if withLimit && len(fields) > 2 {
		if limit, err := strconv.ParseFloat(strings.ReplaceAll(fields[2], ",", ""), 64); err == nil {
			c.limit = limit
		}
	}
}

// parseRateArgs handles "rate X", "fx Y" and the combined "rate X fx Y".
func parseRateArgs(fields []string, c *command) bool {
	i := 0
	for i < len(fields) {
		key := strings.ToLower(fields[i])
		if i+1 >= len(fields) {
			return false
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(fields[i+1], ",", ""), 64)
		if err != nil || v < 0 {
			return false
		}
		switch key {
		case "rate", "费率":
			c.rate = &v
		case "fx", "汇率":
			c.fx = &v
		default:
			return false
		}
		i += 2
	}
	return c.rate != nil || c.fx != nil
}
