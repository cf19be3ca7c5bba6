package internal

import (
	"fmt"
	"regexp"
	"storefront/entity"
	"strings"
)

const maxTransactionIdLength = 25

var transactionIdPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// RequestBuilder assembles and signs outbound payment requests.
// It holds only read-only settings and is safe for concurrent use.
type RequestBuilder struct {
	credential *entity.MerchantCredential
	hasher     *Hasher
	newId      IdGenerator
	successUrl string
	failureUrl string
}

func NewRequestBuilder(credential *entity.MerchantCredential, successUrl, failureUrl string) *RequestBuilder {
	return &RequestBuilder{
		credential: credential,
		hasher:     NewHasher(credential.Key(), credential.Salt()),
		newId:      NewTransactionId,
		successUrl: successUrl,
		failureUrl: failureUrl,
	}
}

func (b *RequestBuilder) SetIdGenerator(generator IdGenerator) {
	b.newId = generator
}

// Build validates the input and returns a signed request with the environment endpoint.
// More than ten custom fields are dropped silently. Identical input gives an identical hash.
func (b *RequestBuilder) Build(input entity.CheckoutInput) (*entity.PaymentRequest, error) {
	amount, err := b.checkAmount(input.Amount)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.BuyerName)
	email := strings.TrimSpace(input.BuyerEmail)
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name and email are required", entity.ErrInvalidBuyer)
	}
	if strings.Contains(name+email+input.BuyerPhone, slotDelimiter) {
		return nil, fmt.Errorf("%w: contains %q", entity.ErrInvalidBuyer, slotDelimiter)
	}
	if strings.Contains(input.ProductInfo, slotDelimiter) {
		return nil, fmt.Errorf("%w: contains %q", entity.ErrInvalidProduct, slotDelimiter)
	}

	transactionId := input.TransactionId
	if transactionId == "" {
		transactionId, err = b.newId()
		if err != nil {
			return nil, err
		}
	} else if len(transactionId) > maxTransactionIdLength || !transactionIdPattern.MatchString(transactionId) {
		return nil, fmt.Errorf("%w: %q", entity.ErrInvalidTransactionId, transactionId)
	}

	request := &entity.PaymentRequest{
		Key:           b.credential.Key(),
		TransactionId: transactionId,
		Amount:        amount,
		ProductInfo:   input.ProductInfo,
		FirstName:     name,
		Email:         email,
		Phone:         strings.TrimSpace(input.BuyerPhone),
		SuccessUrl:    pick(input.SuccessUrl, b.successUrl),
		FailureUrl:    pick(input.FailureUrl, b.failureUrl),
		Endpoint:      b.credential.PaymentUrl(),
	}
	for i, field := range input.CustomFields {
		if i == entity.MaxUserFields {
			break
		}
		request.UserFields[i] = field.Value
	}

	// hash goes last, over the values exactly as they will be posted
	request.Hash = b.hasher.Digest(b.hasher.RequestString(request))
	return request, nil
}

func (b *RequestBuilder) checkAmount(amount string) (string, error) {
	formatted, err := FormatAmount(amount)
	if err != nil {
		return "", err
	}
	value, _ := parseAmount(formatted)
	if value.Sign() <= 0 {
		return "", fmt.Errorf("%w: %s must be greater than zero", entity.ErrInvalidAmount, formatted)
	}
	return formatted, nil
}

func pick(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}
