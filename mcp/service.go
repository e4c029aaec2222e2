package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/idempay/idempay/idempotency"
	"github.com/idempay/idempay/ledger"
)

// Service registers the payment tools on an MCP server.
//
// With an executor (WithExecutor) make_payment is guarded by idempotency
// keys; without one the service is the deliberately non-idempotent variant.
type Service struct {
	ledger      *ledger.Ledger
	executor    *idempotency.Executor
	logger      *zap.Logger
	settleDelay time.Duration
	executions  atomic.Int64
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithExecutor guards make_payment with the given idempotency executor.
func WithExecutor(exec *idempotency.Executor) ServiceOption {
	return func(s *Service) {
		s.executor = exec
	}
}

// WithLogger sets the service logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithSettleDelay makes every other make_payment execution sleep for d
// before returning, long enough for a client with a short timeout to give
// up after the debit has been applied. This is how the demo provokes the
// lost-response scenario.
func WithSettleDelay(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.settleDelay = d
	}
}

// NewService creates a payment tool service over the given ledger.
func NewService(l *ledger.Ledger, opts ...ServiceOption) *Service {
	s := &Service{ledger: l, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds the payment tools to the server.
func (s *Service) Register(server *mcpsdk.Server) {
	server.AddTool(&mcpsdk.Tool{
		Name:        "make_payment",
		Description: "Debit the account and record the transaction. Safe to retry when an idempotency key is supplied in _meta.",
		InputSchema: json.RawMessage(paymentInputSchema),
	}, s.handleMakePayment)

	server.AddTool(&mcpsdk.Tool{
		Name:        "get_balance",
		Description: "Return the current balance in minor units for the account.",
		InputSchema: json.RawMessage(accountInputSchema),
	}, s.handleGetBalance)

	server.AddTool(&mcpsdk.Tool{
		Name:        "get_transactions",
		Description: "Return the processed transactions for the account, oldest first.",
		InputSchema: json.RawMessage(accountInputSchema),
	}, s.handleGetTransactions)
}

func (s *Service) handleMakePayment(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	raw := rawArguments(req)
	if result := validateArgs(paymentInputSchema, raw); result != nil {
		return result, nil
	}

	var args PaymentArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	accountID, err := uuid.Parse(args.AccountUID)
	if err != nil {
		return errorResult(fmt.Sprintf("invalid account_uid: %v", err)), nil
	}

	// The fingerprint is computed over the decoded argument map, not the
	// raw bytes, so retries match regardless of wire-level key order.
	var argMap map[string]any
	if err := json.Unmarshal(raw, &argMap); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	key := IdempotencyKeyFromMeta(req.Params.Meta)

	op := func(ctx context.Context) (json.RawMessage, error) {
		s.simulateSettleDelay()
		tx, err := s.ledger.Debit(accountID, args.IBAN, args.BIC, args.AmountMinorUnits, args.Currency)
		if err != nil {
			return nil, err
		}
		return json.Marshal(PaymentResult{
			Status:        "processed",
			Message:       s.resultMessage(),
			TransactionID: tx.ID.String(),
		})
	}

	var payload json.RawMessage
	if s.executor != nil {
		payload, err = s.executor.Execute(ctx, key, "make_payment", argMap, op)
	} else {
		payload, err = op(ctx)
	}
	if err != nil {
		var conflict *idempotency.KeyConflictError
		if errors.As(err, &conflict) {
			s.logger.Warn("idempotency key reused with different arguments",
				zap.String("idempotency_key", conflict.Key))
			return structuredErrorResult(KeyConflictResult{
				Error:   "key_conflict",
				Message: conflict.Error(),
			}), nil
		}
		s.logger.Warn("make_payment failed",
			zap.String("account_uid", args.AccountUID),
			zap.Error(err))
		return errorResult(err.Error()), nil
	}

	s.logger.Info("make_payment returned",
		zap.String("account_uid", args.AccountUID),
		zap.Bool("idempotent", s.executor != nil && key != ""))
	return rawResult(payload), nil
}

func (s *Service) handleGetBalance(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	accountID, result := s.accountFromRequest(req)
	if result != nil {
		return result, nil
	}

	balance, err := s.ledger.Balance(accountID)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(BalanceResult{BalanceMinorUnits: balance}), nil
}

func (s *Service) handleGetTransactions(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	accountID, result := s.accountFromRequest(req)
	if result != nil {
		return result, nil
	}

	txs, err := s.ledger.Transactions(accountID)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if txs == nil {
		txs = []ledger.Transaction{}
	}
	return jsonResult(TransactionsResult{Transactions: txs}), nil
}

func (s *Service) accountFromRequest(req *mcpsdk.CallToolRequest) (uuid.UUID, *mcpsdk.CallToolResult) {
	raw := rawArguments(req)
	if result := validateArgs(accountInputSchema, raw); result != nil {
		return uuid.Nil, result
	}

	var args AccountArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return uuid.Nil, errorResult(fmt.Sprintf("invalid arguments: %v", err))
	}
	accountID, err := uuid.Parse(args.AccountUID)
	if err != nil {
		return uuid.Nil, errorResult(fmt.Sprintf("invalid account_uid: %v", err))
	}
	return accountID, nil
}

func (s *Service) resultMessage() string {
	if s.executor != nil {
		return "Payment applied once with idempotency protection."
	}
	return "This server is intentionally non-idempotent and will charge twice on retry."
}

// simulateSettleDelay sleeps on every other execution so a client with a
// short timeout gives up after the debit has already happened.
func (s *Service) simulateSettleDelay() {
	if s.settleDelay <= 0 {
		return
	}
	if s.executions.Add(1)%2 == 1 {
		time.Sleep(s.settleDelay)
	}
}

func rawArguments(req *mcpsdk.CallToolRequest) []byte {
	if len(req.Params.Arguments) == 0 {
		return []byte(`{}`)
	}
	return req.Params.Arguments
}

func validateArgs(schema string, raw []byte) *mcpsdk.CallToolResult {
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err))
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return errorResult("invalid arguments: " + strings.Join(msgs, "; "))
	}
	return nil
}

func rawResult(payload json.RawMessage) *mcpsdk.CallToolResult {
	var structured map[string]any
	_ = json.Unmarshal(payload, &structured)
	return &mcpsdk.CallToolResult{
		Content:           []mcpsdk.Content{&mcpsdk.TextContent{Text: string(payload)}},
		StructuredContent: structured,
	}
}

func jsonResult(v any) *mcpsdk.CallToolResult {
	payload, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return rawResult(payload)
}

func errorResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}

func structuredErrorResult(v any) *mcpsdk.CallToolResult {
	payload, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal result: %v", err))
	}
	var structured map[string]any
	_ = json.Unmarshal(payload, &structured)
	return &mcpsdk.CallToolResult{
		IsError:           true,
		Content:           []mcpsdk.Content{&mcpsdk.TextContent{Text: string(payload)}},
		StructuredContent: structured,
	}
}
