package services

import (
	"context"
	"net/url"
	"storefront/entity"
)

type Payments interface {
	Checkout(ctx context.Context, input entity.CheckoutInput) (*entity.PaymentRequest, error)
	Notify(ctx context.Context, form url.Values) (entity.Verdict, error)
	Reconcile(ctx context.Context, transactionId string) (*entity.Transaction, error)
	Refund(ctx context.Context, transactionId string, amount string) (*entity.Refund, error)
	GetTransaction(ctx context.Context, transactionId string) (*entity.Transaction, error)
}
