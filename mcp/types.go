package mcp

import (
	"github.com/idempay/idempay/ledger"
)

// PaymentArgs are the make_payment tool arguments.
type PaymentArgs struct {
	AccountUID       string `json:"account_uid"`
	IBAN             string `json:"iban"`
	BIC              string `json:"bic"`
	AmountMinorUnits int64  `json:"amountMinorUnits"`
	Currency         string `json:"currency"`
}

// AccountArgs are the arguments of the read-only account tools.
type AccountArgs struct {
	AccountUID string `json:"account_uid"`
}

// PaymentResult is the make_payment tool result. A retried call under the
// same idempotency key sees the original TransactionID.
type PaymentResult struct {
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
}

// BalanceResult is the get_balance tool result.
type BalanceResult struct {
	BalanceMinorUnits int64 `json:"balanceMinorUnits"`
}

// TransactionsResult is the get_transactions tool result.
type TransactionsResult struct {
	Transactions []ledger.Transaction `json:"transactions"`
}

// KeyConflictResult is returned when a client reuses an idempotency key with
// different arguments. Deliberately a distinct shape from an operation
// failure: this is a protocol violation, not a declined payment.
type KeyConflictResult struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

const paymentInputSchema = `{
  "type": "object",
  "properties": {
    "account_uid": {"type": "string", "description": "Account to debit"},
    "iban": {"type": "string", "description": "Creditor IBAN"},
    "bic": {"type": "string", "description": "Creditor BIC"},
    "amountMinorUnits": {"type": "integer", "minimum": 1, "description": "Amount in minor units (cents)"},
    "currency": {"type": "string", "minLength": 3, "maxLength": 3, "description": "ISO 4217 currency code"}
  },
  "required": ["account_uid", "iban", "bic", "amountMinorUnits", "currency"],
  "additionalProperties": false
}`

const accountInputSchema = `{
  "type": "object",
  "properties": {
    "account_uid": {"type": "string", "description": "Account to read"}
  },
  "required": ["account_uid"],
  "additionalProperties": false
}`
