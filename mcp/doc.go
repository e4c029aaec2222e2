// Package mcp exposes the payments demo as MCP tools on a server from the
// official Go SDK (github.com/modelcontextprotocol/go-sdk/mcp).
//
// Three tools are registered:
//
//   - make_payment: debits an account. When the service carries an executor
//     and the call carries an idempotency key in _meta, the debit runs at
//     most once per key and retries replay the original outcome.
//   - get_balance: reads the account balance. Unguarded, always executes.
//   - get_transactions: reads the transaction log. Unguarded.
//
// The idempotency key travels out of band in the request _meta, under the
// reserved "io.modelcontextprotocol/idempotency-key" name or the bare
// "idempotencyKey" convention. Extraction is normalized in one place; the
// idempotency core never sees which wire form the client used.
//
// A service built without an executor is the deliberately non-idempotent
// contrast case: every make_payment call debits again, including retries.
package mcp
