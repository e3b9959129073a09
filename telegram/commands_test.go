package telegram

import "testing"

func TestParseAmountCommands(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		kind  commandKind
		expr  string
		card  string
		limit float64
	}{
		{"bare deposit", "+100", cmdDeposit, "100", "", 0},
		{"deposit expression", "+200*3+50", cmdDeposit, "200*3+50", "", 0},
		{"deposit with card", "+500 vcb", cmdDeposit, "500", "VCB", 0},
		{"deposit with card and limit", "+500 vcb 20000", cmdDeposit, "500", "VCB", 20000},
		{"deposit grouped limit", "+500 vcb 1,000,000", cmdDeposit, "500", "VCB", 1000000},
		{"withdrawal", "-250", cmdWithdraw, "250", "", 0},
		{"withdrawal with card", "-250 acb", cmdWithdraw, "250", "ACB", 0},
		{"payout bang", "!90", cmdPayout, "90", "", 0},
		{"payout chinese marker", "下发90", cmdPayout, "90", "", 0},
		{"payout with card", "!90 vcb", cmdPayout, "90", "VCB", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, ok := parseCommand(tt.text)
			if !ok {
				t.Fatalf("parseCommand(%q) not recognized", tt.text)
			}
			if cmd.kind != tt.kind {
				t.Errorf("kind = %v, want %v", cmd.kind, tt.kind)
			}
			if cmd.expr != tt.expr {
				t.Errorf("expr = %q, want %q", cmd.expr, tt.expr)
			}
			if cmd.card != tt.card {
				t.Errorf("card = %q, want %q", cmd.card, tt.card)
			}
			if cmd.limit != tt.limit {
				t.Errorf("limit = %v, want %v", cmd.limit, tt.limit)
			}
		})
	}
}

func TestParseSkip(t *testing.T) {
	tests := []struct {
		text    string
		n       int
		payouts bool
	}{
		{"skip 3", 3, false},
		{"skip !2", 2, true},
		{"撤回 1", 1, false},
		{"撤回 !1", 1, true},
	}
	for _, tt := range tests {
		cmd, ok := parseCommand(tt.text)
		if !ok {
			t.Fatalf("parseCommand(%q) not recognized", tt.text)
		}
		if cmd.kind != cmdSkip || cmd.n != tt.n || cmd.payouts != tt.payouts {
			t.Errorf("parseCommand(%q) = {n:%d payouts:%v}, want {n:%d payouts:%v}",
				tt.text, cmd.n, cmd.payouts, tt.n, tt.payouts)
		}
	}
}

func TestParseRateCommands(t *testing.T) {
	cmd, ok := parseCommand("rate 2.5")
	if !ok || cmd.kind != cmdSetRates {
		t.Fatalf("rate command not recognized")
	}
	if cmd.rate == nil || *cmd.rate != 2.5 {
		t.Errorf("rate = %v, want 2.5", cmd.rate)
	}
	if cmd.fx != nil {
		t.Errorf("fx should be unset, got %v", *cmd.fx)
	}

	cmd, ok = parseCommand("fx 25,300")
	if !ok || cmd.fx == nil || *cmd.fx != 25300 {
		t.Fatalf("fx command = %+v, ok=%v", cmd, ok)
	}

	cmd, ok = parseCommand("rate 2 fx 14600")
	if !ok || cmd.rate == nil || cmd.fx == nil {
		t.Fatalf("combined rate/fx not recognized")
	}
	if *cmd.rate != 2 || *cmd.fx != 14600 {
		t.Errorf("combined = rate %v fx %v, want 2 and 14600", *cmd.rate, *cmd.fx)
	}

	cmd, ok = parseCommand("汇率 14600")
	if !ok || cmd.fx == nil || *cmd.fx != 14600 {
		t.Fatalf("汇率 alias not recognized")
	}

	if _, ok := parseCommand("rate"); ok {
		t.Error("rate without value should not parse")
	}
	if _, ok := parseCommand("rate -1"); ok {
		t.Error("negative rate should not parse")
	}
}

func TestParseCardVisibility(t *testing.T) {
	cmd, ok := parseCommand("hide vcb")
	if !ok || cmd.kind != cmdHideCard || cmd.card != "VCB" {
		t.Fatalf("hide = %+v, ok=%v", cmd, ok)
	}
	cmd, ok = parseCommand("show all")
	if !ok || cmd.kind != cmdShowCard || cmd.card != "ALL" {
		t.Fatalf("show = %+v, ok=%v", cmd, ok)
	}
	if _, ok := parseCommand("hide"); ok {
		t.Error("hide without card should not parse")
	}
}

func TestParseTemplate(t *testing.T) {
	cmd, ok := parseCommand("template Amount credited: {amount} VND ref {order_id}")
	if !ok || cmd.kind != cmdTemplate {
		t.Fatalf("template command not recognized")
	}
	if cmd.arg != "Amount credited: {amount} VND ref {order_id}" {
		t.Errorf("template arg = %q", cmd.arg)
	}

	cmd, ok = parseCommand("template off")
	if !ok || cmd.kind != cmdTemplateOff {
		t.Fatalf("template off not recognized")
	}

	if _, ok := parseCommand("template"); ok {
		t.Error("bare template should not parse")
	}
}

func TestParseMiscCommands(t *testing.T) {
	tests := []struct {
		text string
		kind commandKind
	}{
		{"clear", cmdClear},
		{"清空", cmdClear},
		{"summary", cmdSummary},
		{"账单", cmdSummary},
		{"bill", cmdSummary},
		{"ops", cmdListOperators},
	}
	for _, tt := range tests {
		cmd, ok := parseCommand(tt.text)
		if !ok || cmd.kind != tt.kind {
			t.Errorf("parseCommand(%q) kind = %v, ok=%v, want %v", tt.text, cmd, ok, tt.kind)
		}
	}

	cmd, ok := parseCommand("grouped on")
	if !ok || cmd.kind != cmdGrouped || !cmd.on {
		t.Fatalf("grouped on = %+v, ok=%v", cmd, ok)
	}
	cmd, ok = parseCommand("grouped off")
	if !ok || cmd.kind != cmdGrouped || cmd.on {
		t.Fatalf("grouped off = %+v, ok=%v", cmd, ok)
	}

	cmd, ok = parseCommand("addop 42")
	if !ok || cmd.kind != cmdAddOperator || cmd.userID != 42 {
		t.Fatalf("addop = %+v, ok=%v", cmd, ok)
	}
	cmd, ok = parseCommand("delop 42")
	if !ok || cmd.kind != cmdDelOperator || cmd.userID != 42 {
		t.Fatalf("delop = %+v, ok=%v", cmd, ok)
	}
}

func TestParseRejectsFreeText(t *testing.T) {
	for _, text := range []string{
		"",
		"hello there",
		"Received 1,250,000 VND from A. Nguyen",
		"skip",
		"skip x",
		"addop someone",
		"grouped maybe",
	} {
		if _, ok := parseCommand(text); ok {
			t.Errorf("parseCommand(%q) should not be recognized as a command", text)
		}
	}
}
