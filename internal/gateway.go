package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"storefront/entity"
	"storefront/services"
	"strings"
	"time"
)

const (
	commandVerifyPayment = "verify_payment"
	commandRefund        = "cancel_refund_transaction"
)

// GatewayClient calls the gateway's server-to-server API. Commands are signed with the
// API salt, which is configured separately from the checkout salt.
// It never retries; every call is bounded by the configured timeout.
type GatewayClient struct {
	hasher     *Hasher
	key        string
	apiUrl     string
	timeout    time.Duration
	httpClient *http.Client
	logger     services.LogHandler
	metrics    *Metrics
}

func NewGatewayClient(credential *entity.MerchantCredential, apiSalt string, timeout time.Duration) (*GatewayClient, error) {
	if strings.TrimSpace(apiSalt) == "" {
		return nil, &entity.ConfigurationError{Field: "merchant api salt"}
	}
	return &GatewayClient{
		hasher:  NewHasher(credential.Key(), apiSalt),
		key:     credential.Key(),
		apiUrl:  credential.ApiUrl(),
		timeout: timeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

func (g *GatewayClient) SetLogger(logger services.LogHandler) {
	g.logger = logger
}

func (g *GatewayClient) SetMetrics(metrics *Metrics) {
	g.metrics = metrics
}

// SetApiUrl replaces the environment endpoint, e.g. with a local stub.
func (g *GatewayClient) SetApiUrl(apiUrl string) {
	g.apiUrl = apiUrl
}

// QueryStatus asks the gateway for the current status of a transaction.
func (g *GatewayClient) QueryStatus(ctx context.Context, transactionId string) (*entity.GatewayStatus, error) {
	body, err := g.post(ctx, commandVerifyPayment, transactionId)
	if err != nil {
		return nil, err
	}
	var response entity.StatusQueryResponse
	if err = json.Unmarshal(body, &response); err != nil {
		return nil, &entity.GatewayCommunicationError{Command: commandVerifyPayment, Err: fmt.Errorf("decode response: %w", err)}
	}
	if response.Status != 1 {
		return nil, fmt.Errorf("status query rejected: %s", response.Message)
	}
	detail, ok := response.Details[transactionId]
	if !ok {
		return nil, fmt.Errorf("status query: %w: %s", entity.ErrTransactionNotFound, transactionId)
	}
	return &entity.GatewayStatus{
		TransactionId: transactionId,
		PaymentId:     detail.PaymentId,
		Amount:        detail.Amount,
		Status:        strings.ToLower(detail.Status),
		Message:       detail.ErrorMessage,
	}, nil
}

// Refund requests a refund of amount for the gateway payment id. The token identifies the
// refund request at the gateway, so repeating a call with the same token is safe.
func (g *GatewayClient) Refund(ctx context.Context, paymentId, token, amount string) (*entity.RefundResult, error) {
	body, err := g.post(ctx, commandRefund, paymentId, token, amount)
	if err != nil {
		return nil, err
	}
	var response entity.RefundResponse
	if err = json.Unmarshal(body, &response); err != nil {
		return nil, &entity.GatewayCommunicationError{Command: commandRefund, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &entity.RefundResult{
		Accepted:  response.Status == 1,
		RequestId: response.RequestId,
		Message:   response.Message,
	}, nil
}

func (g *GatewayClient) post(parentCtx context.Context, command string, vars ...string) ([]byte, error) {
	form := url.Values{}
	form.Set("key", g.key)
	form.Set("command", command)
	form.Set("hash", g.hasher.Digest(g.hasher.CommandString(command, vars[0])))
	for i, value := range vars {
		form.Set(fmt.Sprintf("var%d", i+1), value)
	}

	ctx, cancel := context.WithTimeout(parentCtx, g.timeout)
	defer cancel()

	start := time.Now()
	body, err := g.do(ctx, command, form)
	result := "ok"
	if err != nil {
		result = "error"
		if g.logger != nil {
			g.logger.Error(fmt.Sprintf("gateway %s %s", command, secret(vars[0])), err)
		}
	}
	g.metrics.GatewayCall(command, result, time.Since(start))
	return body, err
}

func (g *GatewayClient) do(ctx context.Context, command string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiUrl, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	response, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("request timeout or cancelled: %w", ctx.Err())
		}
		return nil, &entity.GatewayCommunicationError{Command: command, Err: err}
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(response.Body)

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, &entity.GatewayCommunicationError{Command: command, Err: fmt.Errorf("read response body: %w", err)}
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &entity.GatewayCommunicationError{Command: command, StatusCode: response.StatusCode, Err: errors.New(strings.TrimSpace(string(body)))}
	}
	return body, nil
}
