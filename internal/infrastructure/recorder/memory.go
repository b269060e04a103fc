package recorder

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	apppay "github.com/snapbooth/kiosk/internal/application/payment"
	dompay "github.com/snapbooth/kiosk/internal/domain/payment"
)

// Memory is an in-process journal for tests and demo runs without a data
// directory.
type Memory struct {
	mu  sync.Mutex
	txs []apppay.Transaction
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(ctx context.Context, tx apppay.Transaction) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, tx)
	return nil
}

// Transactions returns a copy of everything recorded so far.
func (m *Memory) Transactions() []apppay.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]apppay.Transaction(nil), m.txs...)
}

func methodFrom(s string) dompay.Mode {
	if s == string(dompay.ModeCard) {
		return dompay.ModeCard
	}
	return dompay.ModeCash
}

func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
