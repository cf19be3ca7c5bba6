package entity

import (
	"net/url"
	"time"
)

// Gateway status values reported in callbacks and status queries.
const (
	GatewaySuccess = "success"
	GatewayFailure = "failure"
	GatewayPending = "pending"
)

// PaymentCallback is the untrusted payload posted back by the gateway.
// Nothing in it may drive a state change before Verify accepts it.
type PaymentCallback struct {
	TransactionId string `json:"txnid" bson:"txnid"`
	Amount        string `json:"amount" bson:"amount"`
	Status        string `json:"status" bson:"status"`
	Email         string `json:"email" bson:"email"`
	FirstName     string `json:"firstname" bson:"firstname"`
	ProductInfo   string `json:"productinfo" bson:"productinfo"`
	Hash          string `json:"hash" bson:"hash"`
	// gateway extras, audit only
	PaymentId    string `json:"mihpayid,omitempty" bson:"mihpayid,omitempty"`
	ErrorMessage string `json:"error_message,omitempty" bson:"error_message,omitempty"`
}

// CallbackFromForm reads the callback fields from a posted form; unknown fields are ignored.
func CallbackFromForm(form url.Values) PaymentCallback {
	return PaymentCallback{
		TransactionId: form.Get("txnid"),
		Amount:        form.Get("amount"),
		Status:        form.Get("status"),
		Email:         form.Get("email"),
		FirstName:     form.Get("firstname"),
		ProductInfo:   form.Get("productinfo"),
		Hash:          form.Get("hash"),
		PaymentId:     form.Get("mihpayid"),
		ErrorMessage:  form.Get("error_Message"),
	}
}

type RejectReason string

const DigestMismatch RejectReason = "DigestMismatch"

// Verdict is the outcome of callback verification. A zero Verdict is a rejection.
type Verdict struct {
	Verified      bool         `json:"verified"`
	TransactionId string       `json:"txnid,omitempty"`
	Status        string       `json:"status,omitempty"`
	Reason        RejectReason `json:"reason,omitempty"`
}

func Verified(transactionId, status string) Verdict {
	return Verdict{Verified: true, TransactionId: transactionId, Status: status}
}

func Rejected(reason RejectReason) Verdict {
	return Verdict{Reason: reason}
}

// CallbackRecord is the audit copy of every callback received, verified or not.
type CallbackRecord struct {
	Callback   PaymentCallback `bson:"callback"`
	Verified   bool            `bson:"verified"`
	Reason     string          `bson:"reason,omitempty"`
	RequestId  string          `bson:"request_id,omitempty"`
	TimeStored time.Time       `bson:"time_stored"`
}
