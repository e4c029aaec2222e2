// The demo client. Against each server it reads the balance, calls
// make_payment with a deadline shorter than the server's settle delay (so
// the first attempt times out after the debit applied), retries with the
// same arguments, and prints the final state.
//
// Against the non-idempotent server the retry double-charges; against the
// idempotent server it replays the original transaction.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	paymcp "github.com/idempay/idempay/mcp"
)

const demoAccountUID = "b4d8ada9-74a1-4c64-9ba3-a1af8c8307eb"

func main() {
	nonIdempotentURL := flag.String("non-idempotent-url", "http://127.0.0.1:8000/mcp", "non-idempotent server endpoint")
	idempotentURL := flag.String("idempotent-url", "http://127.0.0.1:8001/mcp", "idempotent server endpoint")
	firstTimeout := flag.Duration("first-timeout", 2*time.Second, "deadline for the first make_payment attempt")
	flag.Parse()

	ctx := context.Background()
	if err := runScenario(ctx, *nonIdempotentURL, "", *firstTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "non-idempotent scenario failed: %v\n", err)
		os.Exit(1)
	}
	if err := runScenario(ctx, *idempotentURL, uuid.NewString(), *firstTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "idempotent scenario failed: %v\n", err)
		os.Exit(1)
	}
}

func runScenario(ctx context.Context, url, idempotencyKey string, firstTimeout time.Duration) error {
	kind := "non-idempotent ⚠️"
	if idempotencyKey != "" {
		kind = "idempotent 🔐"
	}
	divider := strings.Repeat("=", 80)
	fmt.Printf("\n%s\n🚀 Demo against %s (%s)\n%s\n\n", divider, url, kind, divider)

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "idempay-demo-client",
		Version: "1.0.0",
	}, nil)
	session, err := client.Connect(ctx, &mcpsdk.StreamableClientTransport{Endpoint: url}, nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", url, err)
	}
	defer session.Close()

	accountArgs := map[string]any{"account_uid": demoAccountUID}

	initial, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: "get_balance", Arguments: accountArgs})
	if err != nil {
		return fmt.Errorf("get_balance: %w", err)
	}
	printToolResult("💰 Initial balance", initial)

	paymentParams := &mcpsdk.CallToolParams{
		Name: "make_payment",
		Arguments: map[string]any{
			"account_uid":      demoAccountUID,
			"iban":             "DE89370400440532013000",
			"bic":              "COBADEFFXXX",
			"amountMinorUnits": 2500, // 25.00
			"currency":         "EUR",
		},
	}
	if idempotencyKey != "" {
		paymentParams.Meta = mcpsdk.Meta{paymcp.IdempotencyKeyMetaKey: idempotencyKey}
	}

	fmt.Println("⏱️  Calling make_payment (first attempt, expect timeout)...")
	firstCtx, cancel := context.WithTimeout(ctx, firstTimeout)
	first, err := session.CallTool(firstCtx, paymentParams)
	cancel()
	if err != nil {
		fmt.Printf("⏳ First make_payment had a transport issue: %v\n", err)
	} else {
		fmt.Println("⚠️  First call returned before the timeout.")
		printToolResult("🧾 First make_payment result", first)
	}

	fmt.Println("🔁 Retrying make_payment with the same arguments...")
	retryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	second, err := session.CallTool(retryCtx, paymentParams)
	if err != nil {
		return fmt.Errorf("retry make_payment: %w", err)
	}
	printToolResult("🧾 Second make_payment result", second)

	fmt.Println("📊 Getting final state...")
	balance, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: "get_balance", Arguments: accountArgs})
	if err != nil {
		return fmt.Errorf("get_balance: %w", err)
	}
	printToolResult("💰 Final balance", balance)

	transactions, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: "get_transactions", Arguments: accountArgs})
	if err != nil {
		return fmt.Errorf("get_transactions: %w", err)
	}
	printToolResult("📜 Final transactions", transactions)

	return nil
}

func printToolResult(label string, result *mcpsdk.CallToolResult) {
	status := "✅"
	if result.IsError {
		status = "❌"
	}
	text := ""
	for _, item := range result.Content {
		if tc, ok := item.(*mcpsdk.TextContent); ok {
			text = tc.Text
			break
		}
	}
	fmt.Printf("%s: %s %s\n", label, status, text)
}
