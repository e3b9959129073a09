package extract

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	amountPlaceholder  = "{amount}"
	orderIDPlaceholder = "{order_id}"

	// amountCapture accepts plain digit runs and comma-grouped numbers,
	// optionally with decimals. It is the only capturing group in a
	// compiled template; the order id never captures, so the amount is
	// group 1 no matter where the placeholders sit.
	amountCapture  = `(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`
	orderIDPattern = `(?:[A-Za-z0-9]+)`
)

// Template is a compiled per-group auto-extraction matcher. The template
// source is literal text plus an {amount} placeholder and an optional
// {order_id} placeholder.
type Template struct {
	source string
	re     *regexp.Regexp
}

// CompileTemplate builds a case-insensitive matcher from tpl. All literal
// characters are escaped; {amount} becomes a numeric capture and {order_id}
// an alphanumeric matcher, made optional when it sits at the template tail.
func CompileTemplate(tpl string) (*Template, error) {
	tpl = strings.TrimSpace(tpl)
	if tpl == "" {
		return nil, fmt.Errorf("empty template")
	}
	if !strings.Contains(tpl, amountPlaceholder) {
		return nil, fmt.Errorf("template missing %s placeholder", amountPlaceholder)
	}

	var b strings.Builder
	b.WriteString(`(?i)`)
	rest := tpl
	for rest != "" {
		ai := strings.Index(rest, amountPlaceholder)
		oi := strings.Index(rest, orderIDPlaceholder)
		if ai < 0 && oi < 0 {
			b.WriteString(regexp.QuoteMeta(rest))
			break
		}
		if oi < 0 || (ai >= 0 && ai < oi) {
			b.WriteString(regexp.QuoteMeta(rest[:ai]))
			b.WriteString(amountCapture)
			rest = rest[ai+len(amountPlaceholder):]
			continue
		}
		b.WriteString(regexp.QuoteMeta(rest[:oi]))
		if strings.TrimSpace(rest[oi+len(orderIDPlaceholder):]) == "" {
			b.WriteString(orderIDPattern + `?`)
		} else {
			b.WriteString(orderIDPattern)
		}
		rest = rest[oi+len(orderIDPlaceholder):]
	}

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compiling template: %w", err)
	}
	return &Template{source: tpl, re: re}, nil
}

// Source returns the original template string.
func (t *Template) Source() string {
	return t.source
}

// Match runs the template against text and returns the captured amount.
// The first capture group is always the amount candidate.
func (t *Template) Match(text string) (float64, bool) {
	m := t.re.FindStringSubmatch(text)
	if len(m) < 2 || m[1] == "" {
		return 0, false
	}
	v, ok := parseNumber(m[1])
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}
