// Package sessionlog emits the kiosk's payment event lines, one per event,
// in the form "EVENT_NAME key=value ...". Session-history tooling parses
// these lines with pattern matching, so the tokens and the fixed two-decimal
// amount rendering are a contract; do not reword them.
package sessionlog

import (
	"fmt"
	"io"
	"sync"

	"github.com/shopspring/decimal"
)

type Log struct {
	mu sync.Mutex
	w  io.Writer
}

// New wraps the given writer. A nil writer yields a log that discards
// everything, which keeps call sites unconditional.
func New(w io.Writer) *Log {
	if w == nil {
		w = io.Discard
	}
	return &Log{w: w}
}

func (l *Log) line(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format+"\n", args...)
}

func amt(d decimal.Decimal) string { return d.StringFixed(2) }

// Mode records the active tender mode, "cash" or "card".
func (l *Log) Mode(mode string) {
	l.line("PAYMENT_MODE %s", mode)
}

func (l *Log) BillAccepted(amount, total decimal.Decimal) {
	l.line("PAYMENT_BILL_ACCEPTED amount=%s total=%s", amt(amount), amt(total))
}

// BillRejected logs a refused bill. remaining is only rendered when
// withRemaining is set; local pre-forward rejections include it, adapter
// rejections do not carry it.
func (l *Log) BillRejected(amount int64, reason string, remaining decimal.Decimal, withRemaining bool) {
	if withRemaining {
		l.line("PAYMENT_BILL_REJECTED amount=%d reason=%s remaining=%s", amount, reason, amt(remaining))
		return
	}
	l.line("PAYMENT_BILL_REJECTED amount=%d reason=%s", amount, reason)
}

func (l *Log) CardStarted(amount decimal.Decimal) {
	l.line("CARD_PAYMENT_STARTED amount=%s", amt(amount))
}

func (l *Log) CardApproved(amount decimal.Decimal) {
	l.line("CARD_PAYMENT_APPROVED amount=%s", amt(amount))
}

func (l *Log) CardDeclined(amount decimal.Decimal, reason string) {
	l.line("CARD_PAYMENT_DECLINED amount=%s reason=%s", amt(amount), reason)
}

func (l *Log) CardFailed(amount decimal.Decimal, reason string) {
	if reason == "" {
		l.line("CARD_PAYMENT_FAILED amount=%s", amt(amount))
		return
	}
	l.line("CARD_PAYMENT_FAILED amount=%s reason=%s", amt(amount), reason)
}

// Completed is emitted exactly once per session, at the mark-paid commit
// point. The history viewer captures the total with a decimal pattern.
func (l *Log) Completed(total decimal.Decimal) {
	l.line("PAYMENT_COMPLETED total=%s", amt(total))
}

func (l *Log) Canceled() {
	l.line("PAYMENT_CANCELED")
}
