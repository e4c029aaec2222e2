package mcp

import (
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// IdempotencyKeyMetaKey is the reserved _meta name for the idempotency key.
const IdempotencyKeyMetaKey = "io.modelcontextprotocol/idempotency-key"

// legacyIdempotencyKeyMetaKey is the bare convention some clients use
// instead of the reserved name.
const legacyIdempotencyKeyMetaKey = "idempotencyKey"

// IdempotencyKeyFromMeta extracts the idempotency key from a request's
// _meta, accepting either wire convention. Returns "" when no key is
// present; an absent key means the call opted out of idempotency.
func IdempotencyKeyFromMeta(meta mcpsdk.Meta) string {
	if meta == nil {
		return ""
	}
	if key, ok := meta[IdempotencyKeyMetaKey].(string); ok && key != "" {
		return key
	}
	if key, ok := meta[legacyIdempotencyKeyMetaKey].(string); ok && key != "" {
		return key
	}
	return ""
}
