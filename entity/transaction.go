// Package entity defines data models for the storefront payment service.
package entity

import "time"

type TransactionStatus string

const (
	StatusPending TransactionStatus = "pending"
	StatusPaid    TransactionStatus = "paid"
	StatusFailed  TransactionStatus = "failed"
)

// Transaction is one checkout attempt. A transaction id is signed at most once, and
// its status leaves pending at most once.
type Transaction struct {
	Id           string            `json:"txnid" bson:"txnid"`
	Status       TransactionStatus `json:"status" bson:"status"`
	Request      PaymentRequest    `json:"request" bson:"request"`
	CustomFields []CustomField     `json:"custom_fields,omitempty" bson:"custom_fields,omitempty"`
	TimeOpened   time.Time         `json:"time_opened" bson:"time_opened"`
	TimeClosed   time.Time         `json:"time_closed,omitempty" bson:"time_closed,omitempty"`
	// GatewayStatus is the last status reported by a verified callback or a status query
	GatewayStatus string   `json:"gateway_status,omitempty" bson:"gateway_status,omitempty"`
	PaymentId     string   `json:"payment_id,omitempty" bson:"payment_id,omitempty"`
	PaymentError  string   `json:"payment_error,omitempty" bson:"payment_error,omitempty"`
	Refunds       []Refund `json:"refunds,omitempty" bson:"refunds,omitempty"`
}

// TransactionResult is the outcome applied to a pending transaction.
type TransactionResult struct {
	Status        TransactionStatus `bson:"status"`
	GatewayStatus string            `bson:"gateway_status"`
	PaymentId     string            `bson:"payment_id"`
	PaymentError  string            `bson:"payment_error"`
	TimeClosed    time.Time         `bson:"time_closed"`
}

// Refund is a refund request accepted by the gateway.
type Refund struct {
	Amount    string    `json:"amount" bson:"amount"`
	Token     string    `json:"token" bson:"token"`
	RequestId string    `json:"request_id" bson:"request_id"`
	Message   string    `json:"message" bson:"message"`
	Time      time.Time `json:"time" bson:"time"`
}

// Resolve maps a verified gateway status to the transaction status it leads to.
// Pending and unknown statuses keep the order pending until it is reconciled.
func Resolve(gatewayStatus string) TransactionStatus {
	switch gatewayStatus {
	case GatewaySuccess:
		return StatusPaid
	case GatewayFailure:
		return StatusFailed
	default:
		return StatusPending
	}
}
