package services

import (
	"context"
	"storefront/entity"
)

// Database is the transaction store. CompleteTransaction must change a transaction
// only while it is pending, so a replayed result cannot be applied twice.
type Database interface {
	WriteLogMessage(ctx context.Context, data Data) error

	GetTransaction(ctx context.Context, id string) (*entity.Transaction, error)
	SaveTransaction(ctx context.Context, transaction *entity.Transaction) error
	CompleteTransaction(ctx context.Context, id string, result *entity.TransactionResult) (bool, error)
	AddRefund(ctx context.Context, id string, refund *entity.Refund) error

	SaveCallback(ctx context.Context, record *entity.CallbackRecord) error
}

type Data interface {
	DataType() string
}
