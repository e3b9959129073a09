// Package extract infers monetary amounts from free-form chat text: bank
// notification forwards, photo captions, and operator-defined templates.
// Extraction never fails hard; a text with no recognizable amount reports
// "no match" and the caller decides what to tell the user.
package extract

import (
	"regexp"
	"strconv"
	"strings"
)

const numberPattern = `\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`

// Free-text strategies, highest confidence first. The rank index doubles as
// the score: lower wins, ties go to the larger value.
var strategies = []*regexp.Regexp{
	// (a) amount immediately followed by an explicit currency token
	regexp.MustCompile(`(?i)(` + numberPattern + `)\s*(?:usdt|usd|vnd|vnđ|cny|rmb|đồng|dong|元|đ)\b`),
	// (b) amount preceded by a currency symbol
	regexp.MustCompile(`[$€£¥₫]\s*(` + numberPattern + `)`),
	// (c) amount preceded by a labeled keyword
	regexp.MustCompile(`(?i)(?:amount|amt|total|số tiền|so tien|金额|金額|转入|入账)\s*[:：]?\s*[+]?(` + numberPattern + `)`),
	// (d) bare number with thousands grouping
	regexp.MustCompile(`(\d{1,3}(?:,\d{3})+(?:\.\d+)?)`),
	// (e) bare long digit run, last resort
	regexp.MustCompile(`(\d{6,})`),
}

var (
	balanceKeywords = []string{
		"balance", "bal", "số dư", "so du", "sodu", "余额", "餘額", "avail",
	}
	creditKeywords = []string{
		"received", "credited", "incoming", "nhận", "nhan tien", "ghi có",
		"ghi co", "入账", "转入", "收款", "到账", "+",
	}
)

type candidate struct {
	rank  int
	value float64
}

// Amount extracts the most plausible positive amount from free text.
func Amount(text string) (float64, bool) {
	return best(scan(text, nil))
}

// BankAmount extracts an amount from bank-notification-style text. It
// prefers credited/incoming phrasing and drops candidates whose surrounding
// window mentions an account balance, so the running balance in the same
// message never wins over the transaction amount.
func BankAmount(text string) (float64, bool) {
	lower := strings.ToLower(text)
	return best(scan(text, func(c candidate, start, end int) (candidate, bool) {
		window := windowAround(lower, start, end, 20)
		// Credited phrasing outranks everything, including the balance
		// exclusion: "+500,000 ... so du 9,999,999" keeps the credit.
		for _, kw := range creditKeywords {
			if strings.Contains(window, kw) {
				c.rank--
				return c, true
			}
		}
		for _, kw := range balanceKeywords {
			if strings.Contains(window, kw) {
				return c, false
			}
		}
		return c, true
	}))
}

func scan(text string, filter func(candidate, int, int) (candidate, bool)) []candidate {
	var out []candidate
	for rank, re := range strategies {
		for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
			// idx[2]:idx[3] is the first capture group
			if len(idx) < 4 || idx[2] < 0 {
				continue
			}
			v, ok := parseNumber(text[idx[2]:idx[3]])
			if !ok || v <= 0 {
				continue
			}
			c := candidate{rank: rank, value: v}
			if filter != nil {
				c, ok = filter(c, idx[0], idx[1])
				if !ok {
					continue
				}
			}
			out = append(out, c)
		}
	}
	return out
}

func best(cands []candidate) (float64, bool) {
	if len(cands) == 0 {
		return 0, false
	}
	top := cands[0]
	for _, c := range cands[1:] {
		if c.rank < top.rank || (c.rank == top.rank && c.value > top.value) {
			top = c
		}
	}
	return top.value, true
}

func windowAround(s string, start, end, radius int) string {
	lo := start - radius
	if lo < 0 {
		lo = 0
	}
	hi := end + radius
	if hi > len(s) {
		hi = len(s)
	}
	return s[lo:hi]
}

func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
