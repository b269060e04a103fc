package sessionlog

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLineFormats(t *testing.T) {
	cases := []struct {
		name string
		emit func(l *Log)
		want string
	}{
		{
			name: "mode cash",
			emit: func(l *Log) { l.Mode("cash") },
			want: "PAYMENT_MODE cash\n",
		},
		{
			name: "mode card",
			emit: func(l *Log) { l.Mode("card") },
			want: "PAYMENT_MODE card\n",
		},
		{
			name: "bill accepted",
			emit: func(l *Log) { l.BillAccepted(d("20"), d("25")) },
			want: "PAYMENT_BILL_ACCEPTED amount=20.00 total=25.00\n",
		},
		{
			name: "bill rejected with remaining",
			emit: func(l *Log) { l.BillRejected(50, "overpayment", d("5"), true) },
			want: "PAYMENT_BILL_REJECTED amount=50 reason=overpayment remaining=5.00\n",
		},
		{
			name: "bill rejected without remaining",
			emit: func(l *Log) { l.BillRejected(7, "unsupported_denomination", decimal.Zero, false) },
			want: "PAYMENT_BILL_REJECTED amount=7 reason=unsupported_denomination\n",
		},
		{
			name: "card started",
			emit: func(l *Log) { l.CardStarted(d("12.5")) },
			want: "CARD_PAYMENT_STARTED amount=12.50\n",
		},
		{
			name: "card approved",
			emit: func(l *Log) { l.CardApproved(d("12.5")) },
			want: "CARD_PAYMENT_APPROVED amount=12.50\n",
		},
		{
			name: "card declined",
			emit: func(l *Log) { l.CardDeclined(d("12.5"), "insufficient_funds") },
			want: "CARD_PAYMENT_DECLINED amount=12.50 reason=insufficient_funds\n",
		},
		{
			name: "card failed without reason",
			emit: func(l *Log) { l.CardFailed(d("12.5"), "") },
			want: "CARD_PAYMENT_FAILED amount=12.50\n",
		},
		{
			name: "card failed with reason",
			emit: func(l *Log) { l.CardFailed(d("12.5"), "connect_failed") },
			want: "CARD_PAYMENT_FAILED amount=12.50 reason=connect_failed\n",
		},
		{
			name: "completed",
			emit: func(l *Log) { l.Completed(d("30")) },
			want: "PAYMENT_COMPLETED total=30.00\n",
		},
		{
			name: "canceled",
			emit: func(l *Log) { l.Canceled() },
			want: "PAYMENT_CANCELED\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf strings.Builder
			tc.emit(New(&buf))
			assert.Equal(t, tc.want, buf.String())
		})
	}
}

func TestAmountsAlwaysRenderTwoDecimals(t *testing.T) {
	var buf strings.Builder
	l := New(&buf)

	l.BillAccepted(d("5"), d("5"))
	l.Completed(d("7.5"))

	assert.Equal(t,
		"PAYMENT_BILL_ACCEPTED amount=5.00 total=5.00\n"+
			"PAYMENT_COMPLETED total=7.50\n",
		buf.String(),
	)
}

func TestNilWriterDiscards(t *testing.T) {
	l := New(nil)
	assert.NotPanics(t, func() {
		l.Mode("cash")
		l.Completed(d("10"))
	})
}
