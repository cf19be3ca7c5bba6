package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"storefront/config"
	"storefront/entity"
	"storefront/services"
	"sync"
	"time"
)

type memoryDatabase struct {
	mutex        sync.Mutex
	transactions map[string]entity.Transaction
	callbacks    []entity.CallbackRecord
	logs         []services.Data
	completions  int
	failGet      error
}

func newMemoryDatabase() *memoryDatabase {
	return &memoryDatabase{transactions: make(map[string]entity.Transaction)}
}

func (m *memoryDatabase) WriteLogMessage(_ context.Context, data services.Data) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.logs = append(m.logs, data)
	return nil
}

func (m *memoryDatabase) GetTransaction(_ context.Context, id string) (*entity.Transaction, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	transaction, ok := m.transactions[id]
	if !ok {
		return nil, entity.ErrTransactionNotFound
	}
	transaction.Refunds = append([]entity.Refund(nil), transaction.Refunds...)
	return &transaction, nil
}

func (m *memoryDatabase) SaveTransaction(_ context.Context, transaction *entity.Transaction) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.transactions[transaction.Id]; ok {
		return fmt.Errorf("%w: %s", entity.ErrDuplicateTransaction, transaction.Id)
	}
	m.transactions[transaction.Id] = *transaction
	return nil
}

func (m *memoryDatabase) CompleteTransaction(_ context.Context, id string, result *entity.TransactionResult) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	transaction, ok := m.transactions[id]
	if !ok || transaction.Status != entity.StatusPending {
		return false, nil
	}
	transaction.Status = result.Status
	transaction.GatewayStatus = result.GatewayStatus
	transaction.PaymentId = result.PaymentId
	transaction.PaymentError = result.PaymentError
	transaction.TimeClosed = result.TimeClosed
	m.transactions[id] = transaction
	m.completions++
	return true, nil
}

func (m *memoryDatabase) AddRefund(_ context.Context, id string, refund *entity.Refund) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	transaction, ok := m.transactions[id]
	if !ok {
		return entity.ErrTransactionNotFound
	}
	transaction.Refunds = append(transaction.Refunds, *refund)
	m.transactions[id] = transaction
	return nil
}

func (m *memoryDatabase) SaveCallback(_ context.Context, record *entity.CallbackRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.callbacks = append(m.callbacks, *record)
	return nil
}

func (m *memoryDatabase) transaction(id string) entity.Transaction {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.transactions[id]
}

func (m *memoryDatabase) callbackCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.callbacks)
}

// fakeGateway answers from queued results; an empty queue repeats the last one.
type fakeGateway struct {
	mutex         sync.Mutex
	statuses      []gatewayAnswer[*entity.GatewayStatus]
	refunds       []gatewayAnswer[*entity.RefundResult]
	statusCalls   int
	refundCalls   int
	refundTokens  []string
	refundAmounts []string
}

type gatewayAnswer[T any] struct {
	value T
	err   error
}

func (g *fakeGateway) QueryStatus(_ context.Context, _ string) (*entity.GatewayStatus, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	answer := next(&g.statuses, g.statusCalls)
	g.statusCalls++
	return answer.value, answer.err
}

func (g *fakeGateway) Refund(_ context.Context, _, token, amount string) (*entity.RefundResult, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	answer := next(&g.refunds, g.refundCalls)
	g.refundCalls++
	g.refundTokens = append(g.refundTokens, token)
	g.refundAmounts = append(g.refundAmounts, amount)
	return answer.value, answer.err
}

func next[T any](queue *[]gatewayAnswer[T], call int) gatewayAnswer[T] {
	if len(*queue) == 0 {
		var zero gatewayAnswer[T]
		zero.err = errors.New("no answer queued")
		return zero
	}
	if call >= len(*queue) {
		return (*queue)[len(*queue)-1]
	}
	return (*queue)[call]
}

var errUnreachable = &entity.GatewayCommunicationError{Command: commandVerifyPayment, Err: errors.New("connection refused")}

func testConfig() *config.Config {
	conf := &config.Config{}
	conf.Listen.Port = "5100"
	conf.Merchant.Key = testKey
	conf.Merchant.Salt = testSalt
	conf.Merchant.Environment = string(entity.Sandbox)
	conf.Merchant.SuccessUrl = "https://shop.test/ok"
	conf.Merchant.FailureUrl = "https://shop.test/fail"
	conf.Gateway.Timeout = time.Second
	conf.Gateway.MaxRetries = 3
	conf.Gateway.RetryDelay = time.Millisecond
	return conf
}

func testLogger() *Logger {
	return NewLogger("test", true, nil, io.Discard)
}
