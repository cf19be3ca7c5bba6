package internal

import (
	"context"
	"errors"
	"io"
	"net/url"
	"storefront/entity"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayments(t *testing.T) (*Payments, *memoryDatabase, *fakeGateway) {
	t.Helper()
	database := newMemoryDatabase()
	gateway := &fakeGateway{}
	payments := NewPayments(testConfig(), testCredential(t, entity.Sandbox))
	payments.SetDatabase(database)
	payments.SetGateway(gateway)
	payments.SetMetrics(NewMetrics())
	payments.SetLogger(testLogger())
	return payments, database, gateway
}

func callbackForm(status, hash string) url.Values {
	form := url.Values{}
	form.Set("txnid", "TXN_TEST_123456789")
	form.Set("amount", "100.00")
	form.Set("status", status)
	form.Set("email", "john@example.com")
	form.Set("firstname", "John")
	form.Set("productinfo", "Test Product")
	form.Set("mihpayid", "403993715521937565")
	form.Set("hash", hash)
	return form
}

func paidTransaction(t *testing.T, payments *Payments) {
	t.Helper()
	ctx := context.Background()
	_, err := payments.Checkout(ctx, goldenInput())
	require.NoError(t, err)
	verdict, err := payments.Notify(ctx, callbackForm("success", goldenResponseHash))
	require.NoError(t, err)
	require.True(t, verdict.Verified)
}

func TestPayments_CheckoutStoresPendingTransaction(t *testing.T) {
	payments, database, _ := newTestPayments(t)
	payments.SetIdGenerator(func() (string, error) { return "TXN_GENERATED", nil })

	input := goldenInput()
	input.TransactionId = ""
	input.CustomFields = []entity.CustomField{{Name: "order", Value: "A-17"}}
	request, err := payments.Checkout(context.Background(), input)
	require.NoError(t, err)

	stored := database.transaction("TXN_GENERATED")
	assert.Equal(t, entity.StatusPending, stored.Status)
	assert.Equal(t, *request, stored.Request)
	assert.Equal(t, input.CustomFields, stored.CustomFields)
	assert.False(t, stored.TimeOpened.IsZero())
	assert.Equal(t, "https://shop.test/ok", request.SuccessUrl)
}

func TestPayments_CheckoutRejectsUsedTransactionId(t *testing.T) {
	payments, _, _ := newTestPayments(t)
	ctx := context.Background()

	_, err := payments.Checkout(ctx, goldenInput())
	require.NoError(t, err)
	_, err = payments.Checkout(ctx, goldenInput())
	assert.ErrorIs(t, err, entity.ErrDuplicateTransaction)
}

func TestPayments_CheckoutInvalidInputStoresNothing(t *testing.T) {
	payments, database, _ := newTestPayments(t)

	input := goldenInput()
	input.Amount = "0"
	_, err := payments.Checkout(context.Background(), input)
	assert.ErrorIs(t, err, entity.ErrInvalidAmount)
	assert.Empty(t, database.transactions)
}

func TestPayments_CheckoutWithoutDatabase(t *testing.T) {
	payments := NewPayments(testConfig(), testCredential(t, entity.Sandbox))
	payments.SetLogger(testLogger())

	_, err := payments.Checkout(context.Background(), goldenInput())
	assert.Error(t, err)
}

func TestPayments_NotifyVerifiedSuccessMarksPaid(t *testing.T) {
	payments, database, _ := newTestPayments(t)
	paidTransaction(t, payments)

	stored := database.transaction("TXN_TEST_123456789")
	assert.Equal(t, entity.StatusPaid, stored.Status)
	assert.Equal(t, "success", stored.GatewayStatus)
	assert.Equal(t, "403993715521937565", stored.PaymentId)
	assert.False(t, stored.TimeClosed.IsZero())
	require.Len(t, database.callbacks, 1)
	assert.True(t, database.callbacks[0].Verified)
}

func TestPayments_NotifyVerifiedFailureMarksFailed(t *testing.T) {
	payments, database, _ := newTestPayments(t)
	ctx := context.Background()
	_, err := payments.Checkout(ctx, goldenInput())
	require.NoError(t, err)

	form := callbackForm("failure", goldenFailureHash)
	form.Set("error_Message", "Bank was unable to authenticate.")
	verdict, err := payments.Notify(ctx, form)
	require.NoError(t, err)
	assert.True(t, verdict.Verified)

	stored := database.transaction("TXN_TEST_123456789")
	assert.Equal(t, entity.StatusFailed, stored.Status)
	assert.Equal(t, "Bank was unable to authenticate.", stored.PaymentError)
}

func TestPayments_NotifyRejectedChangesNothing(t *testing.T) {
	payments, database, _ := newTestPayments(t)
	ctx := context.Background()
	_, err := payments.Checkout(ctx, goldenInput())
	require.NoError(t, err)

	form := callbackForm("success", goldenResponseHash)
	form.Set("amount", "1.00")
	verdict, err := payments.Notify(ctx, form)
	require.NoError(t, err)

	assert.False(t, verdict.Verified)
	assert.Equal(t, entity.DigestMismatch, verdict.Reason)
	assert.Equal(t, entity.StatusPending, database.transaction("TXN_TEST_123456789").Status)
	require.Len(t, database.callbacks, 1)
	assert.False(t, database.callbacks[0].Verified)
	assert.Equal(t, string(entity.DigestMismatch), database.callbacks[0].Reason)
}

func TestPayments_RejectionStoredInLog(t *testing.T) {
	database := newMemoryDatabase()
	payments := NewPayments(testConfig(), testCredential(t, entity.Sandbox))
	payments.SetDatabase(database)
	payments.SetGateway(&fakeGateway{})
	payments.SetLogger(NewLogger("payments", false, database, io.Discard))

	_, err := payments.Notify(context.Background(), callbackForm("success", "forged"))
	require.NoError(t, err)

	require.Len(t, database.logs, 1)
	message, ok := database.logs[0].(*entity.LogMessage)
	require.True(t, ok)
	assert.Equal(t, "warn", message.Level)
	assert.Equal(t, "payments", message.Category)
	assert.Contains(t, message.Text, "callback rejected")
	assert.NotContains(t, message.Text, "john@example.com")
}

func TestPayments_NotifyReplayAppliesOnce(t *testing.T) {
	payments, database, _ := newTestPayments(t)
	paidTransaction(t, payments)
	ctx := context.Background()

	verdict, err := payments.Notify(ctx, callbackForm("success", goldenResponseHash))
	require.NoError(t, err)
	assert.True(t, verdict.Verified)

	// a later signed failure cannot reopen a closed transaction
	_, err = payments.Notify(ctx, callbackForm("failure", goldenFailureHash))
	require.NoError(t, err)

	assert.Equal(t, 1, database.completions)
	assert.Equal(t, entity.StatusPaid, database.transaction("TXN_TEST_123456789").Status)
	assert.Equal(t, 3, database.callbackCount())
}

func TestPayments_NotifyConcurrentCallbacksApplyOnce(t *testing.T) {
	payments, database, _ := newTestPayments(t)
	_, err := payments.Checkout(context.Background(), goldenInput())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := payments.Notify(context.Background(), callbackForm("success", goldenResponseHash))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, database.completions)
	assert.Equal(t, 20, database.callbackCount())
	assert.Empty(t, payments.locks)
}

func TestPayments_NotifyAmountMismatchNotFulfilled(t *testing.T) {
	payments, database, _ := newTestPayments(t)
	ctx := context.Background()
	input := goldenInput()
	input.Amount = "200"
	_, err := payments.Checkout(ctx, input)
	require.NoError(t, err)

	// correctly signed, but for a different amount than the one requested
	verdict, err := payments.Notify(ctx, callbackForm("success", goldenResponseHash))
	assert.True(t, verdict.Verified)
	assert.ErrorIs(t, err, entity.ErrAmountMismatch)
	assert.Equal(t, entity.StatusPending, database.transaction("TXN_TEST_123456789").Status)
}

func TestPayments_NotifyUnknownTransaction(t *testing.T) {
	payments, _, _ := newTestPayments(t)

	verdict, err := payments.Notify(context.Background(), callbackForm("success", goldenResponseHash))
	assert.True(t, verdict.Verified)
	assert.ErrorIs(t, err, entity.ErrTransactionNotFound)
}

func TestPayments_NotifyPendingStatusKeepsPending(t *testing.T) {
	payments, database, _ := newTestPayments(t)
	ctx := context.Background()
	_, err := payments.Checkout(ctx, goldenInput())
	require.NoError(t, err)

	hasher := NewHasher(testKey, testSalt)
	callback := goldenCallback("pending")
	form := callbackForm("pending", hasher.Digest(hasher.ResponseString(callback, "100.00")))
	verdict, err := payments.Notify(ctx, form)
	require.NoError(t, err)

	assert.True(t, verdict.Verified)
	assert.Equal(t, entity.StatusPending, database.transaction("TXN_TEST_123456789").Status)
	assert.Zero(t, database.completions)
}

func TestPayments_ReconcileRetriesCommunicationErrors(t *testing.T) {
	payments, database, gateway := newTestPayments(t)
	ctx := context.Background()
	_, err := payments.Checkout(ctx, goldenInput())
	require.NoError(t, err)

	gateway.statuses = []gatewayAnswer[*entity.GatewayStatus]{
		{err: errUnreachable},
		{err: errUnreachable},
		{value: &entity.GatewayStatus{TransactionId: "TXN_TEST_123456789", PaymentId: "4039", Amount: "100.00", Status: "success"}},
	}
	transaction, err := payments.Reconcile(ctx, "TXN_TEST_123456789")
	require.NoError(t, err)

	assert.Equal(t, 3, gateway.statusCalls)
	assert.Equal(t, entity.StatusPaid, transaction.Status)
	assert.Equal(t, "4039", database.transaction("TXN_TEST_123456789").PaymentId)
}

func TestPayments_ReconcileGivesUpAfterMaxRetries(t *testing.T) {
	payments, database, gateway := newTestPayments(t)
	ctx := context.Background()
	_, err := payments.Checkout(ctx, goldenInput())
	require.NoError(t, err)

	gateway.statuses = []gatewayAnswer[*entity.GatewayStatus]{{err: errUnreachable}}
	_, err = payments.Reconcile(ctx, "TXN_TEST_123456789")

	assert.True(t, entity.IsGatewayCommunication(err))
	assert.Equal(t, 4, gateway.statusCalls)
	assert.Equal(t, entity.StatusPending, database.transaction("TXN_TEST_123456789").Status)
}

func TestPayments_ReconcileDoesNotRetryOtherErrors(t *testing.T) {
	payments, database, gateway := newTestPayments(t)
	ctx := context.Background()
	_, err := payments.Checkout(ctx, goldenInput())
	require.NoError(t, err)

	rejected := errors.New("status query rejected: invalid hash")
	gateway.statuses = []gatewayAnswer[*entity.GatewayStatus]{{err: rejected}}
	_, err = payments.Reconcile(ctx, "TXN_TEST_123456789")

	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, 1, gateway.statusCalls)
	assert.Equal(t, entity.StatusPending, database.transaction("TXN_TEST_123456789").Status)
}

func TestPayments_ReconcileClosedTransactionSkipsGateway(t *testing.T) {
	payments, _, gateway := newTestPayments(t)
	paidTransaction(t, payments)

	transaction, err := payments.Reconcile(context.Background(), "TXN_TEST_123456789")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPaid, transaction.Status)
	assert.Zero(t, gateway.statusCalls)
}

func TestPayments_ReconcileWithoutGateway(t *testing.T) {
	payments := NewPayments(testConfig(), testCredential(t, entity.Sandbox))
	payments.SetDatabase(newMemoryDatabase())
	payments.SetLogger(testLogger())

	_, err := payments.Reconcile(context.Background(), "TXN_TEST_123456789")
	var configErr *entity.ConfigurationError
	assert.ErrorAs(t, err, &configErr)

	_, err = payments.Refund(context.Background(), "TXN_TEST_123456789", "10")
	assert.ErrorAs(t, err, &configErr)
}

func TestPayments_RefundPartial(t *testing.T) {
	payments, database, gateway := newTestPayments(t)
	paidTransaction(t, payments)
	ctx := context.Background()
	gateway.refunds = []gatewayAnswer[*entity.RefundResult]{
		{value: &entity.RefundResult{Accepted: true, RequestId: "R1", Message: "Refund Request Queued"}},
	}

	refund, err := payments.Refund(ctx, "TXN_TEST_123456789", "40")
	require.NoError(t, err)
	assert.Equal(t, "40.00", refund.Amount)
	assert.Equal(t, "R1", refund.RequestId)
	assert.NotEmpty(t, refund.Token)

	_, err = payments.Refund(ctx, "TXN_TEST_123456789", "60.01")
	assert.ErrorIs(t, err, entity.ErrRefundNotAllowed)

	_, err = payments.Refund(ctx, "TXN_TEST_123456789", "60")
	require.NoError(t, err)

	stored := database.transaction("TXN_TEST_123456789")
	require.Len(t, stored.Refunds, 2)
	assert.Equal(t, "60.00", stored.Refunds[1].Amount)
	assert.Equal(t, []string{"40.00", "60.00"}, gateway.refundAmounts)
}

func TestPayments_RefundRetryKeepsToken(t *testing.T) {
	payments, _, gateway := newTestPayments(t)
	paidTransaction(t, payments)
	gateway.refunds = []gatewayAnswer[*entity.RefundResult]{
		{err: errUnreachable},
		{value: &entity.RefundResult{Accepted: true, RequestId: "R1"}},
	}

	refund, err := payments.Refund(context.Background(), "TXN_TEST_123456789", "100")
	require.NoError(t, err)

	require.Len(t, gateway.refundTokens, 2)
	assert.Equal(t, gateway.refundTokens[0], gateway.refundTokens[1])
	assert.Equal(t, refund.Token, gateway.refundTokens[0])
}

func TestPayments_RefundRejected(t *testing.T) {
	payments, database, gateway := newTestPayments(t)
	paidTransaction(t, payments)
	gateway.refunds = []gatewayAnswer[*entity.RefundResult]{
		{value: &entity.RefundResult{Accepted: false, Message: "Invalid amount"}},
	}

	_, err := payments.Refund(context.Background(), "TXN_TEST_123456789", "10")
	assert.ErrorIs(t, err, entity.ErrRefundNotAllowed)
	assert.Empty(t, database.transaction("TXN_TEST_123456789").Refunds)
}

func TestPayments_RefundRequiresPaidTransaction(t *testing.T) {
	payments, _, gateway := newTestPayments(t)
	ctx := context.Background()
	_, err := payments.Checkout(ctx, goldenInput())
	require.NoError(t, err)

	_, err = payments.Refund(ctx, "TXN_TEST_123456789", "10")
	assert.ErrorIs(t, err, entity.ErrRefundNotAllowed)

	_, err = payments.Refund(ctx, "TXN_TEST_123456789", "0")
	assert.ErrorIs(t, err, entity.ErrInvalidAmount)

	_, err = payments.Refund(ctx, "TXN_UNKNOWN", "10")
	assert.ErrorIs(t, err, entity.ErrTransactionNotFound)
	assert.Zero(t, gateway.refundCalls)
}

func TestRefundable(t *testing.T) {
	transaction := &entity.Transaction{
		Request: entity.PaymentRequest{Amount: "100.00"},
		Refunds: []entity.Refund{{Amount: "33.33"}, {Amount: "33.33"}},
	}
	available, err := refundable(transaction)
	require.NoError(t, err)
	assert.Equal(t, "33.34", available)
}

func TestSecret(t *testing.T) {
	assert.Equal(t, "john@***", secret("john@example.com"))
	assert.Equal(t, "***", secret("abc"))
	assert.Equal(t, "?", secret(""))
}
