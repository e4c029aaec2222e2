// Package ledger holds account balances and their transaction logs. It is
// the side-effecting collaborator the payment tool mutates; it knows nothing
// about idempotency.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAccountNotFound reports an operation on an unknown account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrAccountExists reports opening an account id twice.
	ErrAccountExists = errors.New("ledger: account already exists")
	// ErrNonPositiveAmount reports a debit of zero or negative minor units.
	ErrNonPositiveAmount = errors.New("ledger: amount must be positive")
)

// InsufficientFundsError reports a debit exceeding the account balance.
type InsufficientFundsError struct {
	BalanceMinorUnits int64
	AmountMinorUnits  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %d cannot cover payment of %d", e.BalanceMinorUnits, e.AmountMinorUnits)
}

// Transaction is one committed debit. ID is the transaction identifier a
// retried payment must see again.
type Transaction struct {
	ID               uuid.UUID `json:"transactionId"`
	IBAN             string    `json:"iban"`
	BIC              string    `json:"bic"`
	AmountMinorUnits int64     `json:"amountMinorUnits"`
	Currency         string    `json:"currency"`
	CreatedAt        time.Time `json:"createdAt"`
}

type account struct {
	balanceMinorUnits int64
	transactions      []Transaction
}

// Ledger is an in-memory multi-account ledger guarded by a single mutex.
type Ledger struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*account
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{accounts: make(map[uuid.UUID]*account)}
}

// OpenAccount registers an account with an opening balance in minor units.
func (l *Ledger) OpenAccount(id uuid.UUID, openingMinorUnits int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.accounts[id]; ok {
		return ErrAccountExists
	}
	l.accounts[id] = &account{balanceMinorUnits: openingMinorUnits}
	return nil
}

// Debit withdraws amountMinorUnits from the account and appends a
// transaction record, returning it. The balance check and the mutation are
// one critical section.
func (l *Ledger) Debit(id uuid.UUID, iban, bic string, amountMinorUnits int64, currency string) (Transaction, error) {
	if amountMinorUnits <= 0 {
		return Transaction{}, ErrNonPositiveAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[id]
	if !ok {
		return Transaction{}, ErrAccountNotFound
	}
	if acct.balanceMinorUnits < amountMinorUnits {
		return Transaction{}, &InsufficientFundsError{
			BalanceMinorUnits: acct.balanceMinorUnits,
			AmountMinorUnits:  amountMinorUnits,
		}
	}

	tx := Transaction{
		ID:               uuid.New(),
		IBAN:             iban,
		BIC:              bic,
		AmountMinorUnits: amountMinorUnits,
		Currency:         currency,
		CreatedAt:        time.Now().UTC(),
	}
	acct.balanceMinorUnits -= amountMinorUnits
	acct.transactions = append(acct.transactions, tx)
	return tx, nil
}

// Balance returns the account's current balance in minor units.
func (l *Ledger) Balance(id uuid.UUID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[id]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return acct.balanceMinorUnits, nil
}

// Transactions returns the account's committed transactions, oldest first.
func (l *Ledger) Transactions(id uuid.UUID) ([]Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	out := make([]Transaction, len(acct.transactions))
	copy(out, acct.transactions)
	return out, nil
}
