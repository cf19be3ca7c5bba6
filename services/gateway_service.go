package services

import (
	"context"
	"storefront/entity"
)

// Gateway is the server-to-server API of the payment gateway. Implementations apply
// their own timeout and report transport failures as *entity.GatewayCommunicationError.
type Gateway interface {
	QueryStatus(ctx context.Context, transactionId string) (*entity.GatewayStatus, error)
	Refund(ctx context.Context, paymentId, token, amount string) (*entity.RefundResult, error)
}
