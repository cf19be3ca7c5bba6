package internal

import (
	"context"
	"errors"
	"fmt"
	"github.com/cenkalti/backoff/v4"
	"net/url"
	"storefront/config"
	"storefront/entity"
	"storefront/services"
	"sync"
	"time"
)

// Payments is the checkout flow around the payment core: it signs requests, verifies
// callbacks and moves transactions out of pending at most once.
type Payments struct {
	conf     *config.Config
	database services.Database
	gateway  services.Gateway
	logger   services.LogHandler
	metrics  *Metrics
	builder  *RequestBuilder
	verifier *Verifier

	locksMutex sync.Mutex
	locks      map[string]*orderLock
}

type orderLock struct {
	mutex sync.Mutex
	refs  int
}

// NewPayments creates the checkout flow for one merchant credential.
func NewPayments(conf *config.Config, credential *entity.MerchantCredential) *Payments {
	return &Payments{
		conf:     conf,
		builder:  NewRequestBuilder(credential, conf.Merchant.SuccessUrl, conf.Merchant.FailureUrl),
		verifier: NewVerifier(credential),
		locks:    make(map[string]*orderLock),
	}
}

// lockOrder serializes work on one transaction id while other ids proceed in parallel.
// The database conditional update stays the authority across processes.
func (p *Payments) lockOrder(id string) *orderLock {
	p.locksMutex.Lock()
	lock, ok := p.locks[id]
	if !ok {
		lock = &orderLock{}
		p.locks[id] = lock
	}
	lock.refs++
	p.locksMutex.Unlock()

	lock.mutex.Lock()
	return lock
}

func (p *Payments) unlockOrder(id string, lock *orderLock) {
	lock.mutex.Unlock()

	p.locksMutex.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(p.locks, id)
	}
	p.locksMutex.Unlock()
}

func (p *Payments) SetDatabase(database services.Database) {
	p.database = database
}

func (p *Payments) SetGateway(gateway services.Gateway) {
	p.gateway = gateway
}

func (p *Payments) SetMetrics(metrics *Metrics) {
	p.metrics = metrics
}

func (p *Payments) SetLogger(logger services.LogHandler) {
	p.logger = logger
	if p.gateway == nil {
		p.logger.Warn("gateway api not configured: reconcile and refund disabled")
	}
}

// SetIdGenerator replaces the transaction id generator of the request builder.
func (p *Payments) SetIdGenerator(generator IdGenerator) {
	p.builder.SetIdGenerator(generator)
}

// Checkout signs a payment request and stores the new transaction as pending.
func (p *Payments) Checkout(ctx context.Context, input entity.CheckoutInput) (*entity.PaymentRequest, error) {
	if p.database == nil {
		return nil, fmt.Errorf("database not set")
	}
	reqID := GetRequestID(ctx)

	if input.TransactionId != "" {
		existing, err := p.database.GetTransaction(ctx, input.TransactionId)
		if err == nil && existing != nil {
			p.metrics.Checkout("duplicate")
			return nil, fmt.Errorf("%w: %s", entity.ErrDuplicateTransaction, input.TransactionId)
		}
		if err != nil && !errors.Is(err, entity.ErrTransactionNotFound) {
			return nil, fmt.Errorf("check transaction: %w", err)
		}
	}

	request, err := p.builder.Build(input)
	if err != nil {
		p.metrics.Checkout("invalid")
		p.logger.Warn(fmt.Sprintf("[%s] checkout rejected: %v", reqID, err))
		return nil, err
	}

	fields := input.CustomFields
	if len(fields) > entity.MaxUserFields {
		fields = fields[:entity.MaxUserFields]
	}
	transaction := &entity.Transaction{
		Id:           request.TransactionId,
		Status:       entity.StatusPending,
		Request:      *request,
		CustomFields: fields,
		TimeOpened:   time.Now(),
	}
	if err = p.database.SaveTransaction(ctx, transaction); err != nil {
		if errors.Is(err, entity.ErrDuplicateTransaction) {
			p.metrics.Checkout("duplicate")
		}
		return nil, fmt.Errorf("save transaction: %w", err)
	}

	p.metrics.Checkout("created")
	p.logger.Info(fmt.Sprintf("[%s] checkout %s: amount %s; buyer %s", reqID, request.TransactionId, request.Amount, secret(request.Email)))
	return request, nil
}

// Notify handles a gateway callback. A rejected callback is returned as a verdict, never as
// an error, and never changes a transaction. The error reports a failure to apply a
// verified result.
func (p *Payments) Notify(ctx context.Context, form url.Values) (entity.Verdict, error) {
	if p.database == nil {
		return entity.Verdict{}, fmt.Errorf("database not set")
	}
	reqID := GetRequestID(ctx)

	callback := entity.CallbackFromForm(form)
	verdict := p.verifier.Verify(&callback)
	p.saveCallback(ctx, &callback, verdict)

	if !verdict.Verified {
		p.metrics.Callback("rejected")
		p.logger.Warn(fmt.Sprintf("[%s] callback rejected: %s; txnid: %s; status: %s; amount: %s; email: %s; payment id: %s",
			reqID, verdict.Reason, callback.TransactionId, callback.Status, callback.Amount, secret(callback.Email), callback.PaymentId))
		return verdict, nil
	}
	p.metrics.Callback("verified")
	p.logger.Info(fmt.Sprintf("[%s] callback verified: txnid: %s; status: %s; amount: %s", reqID, verdict.TransactionId, verdict.Status, callback.Amount))

	result := &entity.TransactionResult{
		Status:        entity.Resolve(verdict.Status),
		GatewayStatus: verdict.Status,
		PaymentId:     callback.PaymentId,
		PaymentError:  callback.ErrorMessage,
		TimeClosed:    time.Now(),
	}
	return verdict, p.apply(ctx, verdict.TransactionId, result, callback.Amount, "callback")
}

// Reconcile queries the gateway for the status of a pending transaction and applies it.
// Communication failures are retried with backoff and leave the transaction untouched.
func (p *Payments) Reconcile(ctx context.Context, transactionId string) (*entity.Transaction, error) {
	if p.gateway == nil {
		return nil, &entity.ConfigurationError{Field: "merchant api salt"}
	}
	transaction, err := p.GetTransaction(ctx, transactionId)
	if err != nil {
		return nil, err
	}
	if transaction.Status != entity.StatusPending {
		return transaction, nil
	}

	var status *entity.GatewayStatus
	err = p.retry(ctx, "reconcile "+transactionId, func() error {
		var e error
		status, e = p.gateway.QueryStatus(ctx, transactionId)
		return e
	})
	if err != nil {
		return nil, err
	}

	result := &entity.TransactionResult{
		Status:        entity.Resolve(status.Status),
		GatewayStatus: status.Status,
		PaymentId:     status.PaymentId,
		PaymentError:  status.Message,
		TimeClosed:    time.Now(),
	}
	if err = p.apply(ctx, transactionId, result, status.Amount, "reconcile"); err != nil {
		return nil, err
	}
	return p.GetTransaction(ctx, transactionId)
}

// Refund asks the gateway to refund part or all of a paid transaction.
func (p *Payments) Refund(ctx context.Context, transactionId string, amount string) (*entity.Refund, error) {
	if p.gateway == nil {
		return nil, &entity.ConfigurationError{Field: "merchant api salt"}
	}
	formatted, err := FormatAmount(amount)
	if err != nil {
		return nil, err
	}
	if cmp, _ := compareAmounts(formatted, "0"); cmp <= 0 {
		return nil, fmt.Errorf("%w: refund %s must be greater than zero", entity.ErrInvalidAmount, formatted)
	}

	lock := p.lockOrder(transactionId)
	defer p.unlockOrder(transactionId, lock)

	transaction, err := p.GetTransaction(ctx, transactionId)
	if err != nil {
		return nil, err
	}
	if transaction.Status != entity.StatusPaid || transaction.PaymentId == "" {
		return nil, fmt.Errorf("%w: transaction %s is %s", entity.ErrRefundNotAllowed, transactionId, transaction.Status)
	}
	available, err := refundable(transaction)
	if err != nil {
		return nil, err
	}
	if cmp, _ := compareAmounts(formatted, available); cmp > 0 {
		return nil, fmt.Errorf("%w: refund %s exceeds refundable %s", entity.ErrRefundNotAllowed, formatted, available)
	}

	token, err := NewTransactionId()
	if err != nil {
		return nil, err
	}
	var result *entity.RefundResult
	err = p.retry(ctx, "refund "+transactionId, func() error {
		var e error
		result, e = p.gateway.Refund(ctx, transaction.PaymentId, token, formatted)
		return e
	})
	if err != nil {
		return nil, err
	}
	if !result.Accepted {
		return nil, fmt.Errorf("%w: gateway: %s", entity.ErrRefundNotAllowed, result.Message)
	}

	refund := &entity.Refund{
		Amount:    formatted,
		Token:     token,
		RequestId: result.RequestId,
		Message:   result.Message,
		Time:      time.Now(),
	}
	if err = p.database.AddRefund(ctx, transactionId, refund); err != nil {
		p.logger.Error(fmt.Sprintf("refund %s accepted as %s but not stored", transactionId, refund.RequestId), err)
		return refund, fmt.Errorf("save refund: %w", err)
	}
	p.logger.Info(fmt.Sprintf("refund %s: amount %s; request %s", transactionId, formatted, refund.RequestId))
	return refund, nil
}

func (p *Payments) GetTransaction(ctx context.Context, transactionId string) (*entity.Transaction, error) {
	if p.database == nil {
		return nil, fmt.Errorf("database not set")
	}
	transaction, err := p.database.GetTransaction(ctx, transactionId)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", transactionId, err)
	}
	return transaction, nil
}

// apply moves a pending transaction to the result status. Results that keep the
// transaction pending, and results for transactions already closed, change nothing.
func (p *Payments) apply(ctx context.Context, transactionId string, result *entity.TransactionResult, amount, source string) error {
	lock := p.lockOrder(transactionId)
	defer p.unlockOrder(transactionId, lock)

	transaction, err := p.GetTransaction(ctx, transactionId)
	if err != nil {
		p.logger.Error(fmt.Sprintf("%s: apply %s", source, result.GatewayStatus), err)
		return err
	}
	if result.Status == entity.StatusPending {
		p.logger.Info(fmt.Sprintf("%s: transaction %s stays pending; gateway status %s", source, transactionId, result.GatewayStatus))
		return nil
	}
	if transaction.Status != entity.StatusPending {
		p.logger.Info(fmt.Sprintf("%s: transaction %s already %s; %s ignored", source, transactionId, transaction.Status, result.GatewayStatus))
		return nil
	}
	if result.Status == entity.StatusPaid {
		cmp, err := compareAmounts(amount, transaction.Request.Amount)
		if err != nil || cmp != 0 {
			err = fmt.Errorf("%w: gateway %s, expected %s", entity.ErrAmountMismatch, amount, transaction.Request.Amount)
			p.logger.Error(fmt.Sprintf("%s: transaction %s not fulfilled", source, transactionId), err)
			return err
		}
	}

	changed, err := p.database.CompleteTransaction(ctx, transactionId, result)
	if err != nil {
		p.logger.Error(fmt.Sprintf("%s: complete transaction %s", source, transactionId), err)
		return err
	}
	if !changed {
		p.logger.Info(fmt.Sprintf("%s: transaction %s was completed concurrently", source, transactionId))
		return nil
	}
	p.metrics.Transition(string(result.Status), source)
	p.logger.Info(fmt.Sprintf("%s: transaction %s %s", source, transactionId, result.Status))
	return nil
}

// retry runs a gateway operation, retrying only on communication errors.
func (p *Payments) retry(ctx context.Context, name string, operation func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.conf.Gateway.RetryDelay
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, p.conf.Gateway.MaxRetries), ctx)

	return backoff.RetryNotify(func() error {
		err := operation()
		if err != nil && !entity.IsGatewayCommunication(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, next time.Duration) {
		p.logger.Warn(fmt.Sprintf("%s: retry in %v: %v", name, next, err))
	})
}

func (p *Payments) saveCallback(ctx context.Context, callback *entity.PaymentCallback, verdict entity.Verdict) {
	record := &entity.CallbackRecord{
		Callback:   *callback,
		Verified:   verdict.Verified,
		Reason:     string(verdict.Reason),
		RequestId:  GetRequestID(ctx),
		TimeStored: time.Now(),
	}
	if err := p.database.SaveCallback(ctx, record); err != nil {
		p.logger.Error("save callback", err)
	}
}

// refundable is the paid amount minus refunds already requested.
func refundable(transaction *entity.Transaction) (string, error) {
	total, err := parseAmount(transaction.Request.Amount)
	if err != nil {
		return "", err
	}
	for _, refund := range transaction.Refunds {
		value, err := parseAmount(refund.Amount)
		if err != nil {
			return "", err
		}
		total = total.Sub(value)
	}
	return total.StringFixed(2), nil
}

func secret(some string) string {
	if len(some) > 5 {
		return fmt.Sprintf("%s***", some[0:5])
	}
	if some == "" {
		return "?"
	}
	return "***"
}
