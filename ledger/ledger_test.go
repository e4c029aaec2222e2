package ledger

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebitUpdatesBalanceAndLog(t *testing.T) {
	l := New()
	id := uuid.New()
	require.NoError(t, l.OpenAccount(id, 10_000))

	tx, err := l.Debit(id, "DE89370400440532013000", "COBADEFFXXX", 2_500, "EUR")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, tx.ID)
	assert.Equal(t, int64(2_500), tx.AmountMinorUnits)
	assert.Equal(t, "EUR", tx.Currency)

	balance, err := l.Balance(id)
	require.NoError(t, err)
	assert.Equal(t, int64(7_500), balance)

	txs, err := l.Transactions(id)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, tx.ID, txs[0].ID)
}

func TestDebitInsufficientFunds(t *testing.T) {
	l := New()
	id := uuid.New()
	require.NoError(t, l.OpenAccount(id, 1_000))

	_, err := l.Debit(id, "DE89", "COBA", 2_500, "EUR")
	var insufficient *InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(1_000), insufficient.BalanceMinorUnits)
	assert.Equal(t, int64(2_500), insufficient.AmountMinorUnits)

	// Balance untouched by the rejected debit.
	balance, err := l.Balance(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), balance)
}

func TestDebitValidation(t *testing.T) {
	l := New()
	id := uuid.New()
	require.NoError(t, l.OpenAccount(id, 1_000))

	_, err := l.Debit(id, "DE89", "COBA", 0, "EUR")
	assert.True(t, errors.Is(err, ErrNonPositiveAmount))

	_, err = l.Debit(uuid.New(), "DE89", "COBA", 100, "EUR")
	assert.True(t, errors.Is(err, ErrAccountNotFound))
}

func TestOpenAccountTwice(t *testing.T) {
	l := New()
	id := uuid.New()
	require.NoError(t, l.OpenAccount(id, 1_000))
	assert.True(t, errors.Is(l.OpenAccount(id, 2_000), ErrAccountExists))
}

func TestTransactionsReturnsCopy(t *testing.T) {
	l := New()
	id := uuid.New()
	require.NoError(t, l.OpenAccount(id, 10_000))
	_, err := l.Debit(id, "DE89", "COBA", 100, "EUR")
	require.NoError(t, err)

	txs, err := l.Transactions(id)
	require.NoError(t, err)
	txs[0].AmountMinorUnits = 999_999

	fresh, err := l.Transactions(id)
	require.NoError(t, err)
	assert.Equal(t, int64(100), fresh[0].AmountMinorUnits)
}
