package entity

import (
	"fmt"
	"net/url"
)

// MaxUserFields is the number of udf slots the gateway accepts.
const MaxUserFields = 10

// CustomField is an opaque merchant value sent to the gateway as udfN.
// Name is kept in the stored transaction only, it is never transmitted.
type CustomField struct {
	Name  string `json:"name" bson:"name"`
	Value string `json:"value" bson:"value"`
}

// CheckoutInput is what the checkout flow hands to the request builder.
type CheckoutInput struct {
	// Amount as a decimal string, e.g. "100", "100.5", "100.50"
	Amount      string `json:"amount"`
	ProductInfo string `json:"product_info"`
	BuyerName   string `json:"buyer_name"`
	BuyerEmail  string `json:"buyer_email"`
	BuyerPhone  string `json:"buyer_phone,omitempty"`
	// SuccessUrl and FailureUrl override the configured callback URLs when set
	SuccessUrl   string        `json:"success_url,omitempty"`
	FailureUrl   string        `json:"failure_url,omitempty"`
	CustomFields []CustomField `json:"custom_fields,omitempty"`
	// TransactionId is generated when empty
	TransactionId string `json:"transaction_id,omitempty"`
}

// PaymentRequest is a signed, gateway-submittable payload. Every field is stored exactly
// as it is transmitted; Hash was computed over these values.
type PaymentRequest struct {
	Key           string `json:"key" bson:"key"`
	TransactionId string `json:"txnid" bson:"txnid"`
	// Amount always has two decimal digits
	Amount      string `json:"amount" bson:"amount"`
	ProductInfo string `json:"productinfo" bson:"productinfo"`
	FirstName   string `json:"firstname" bson:"firstname"`
	Email       string `json:"email" bson:"email"`
	Phone       string `json:"phone" bson:"phone"`
	SuccessUrl  string `json:"surl" bson:"surl"`
	FailureUrl  string `json:"furl" bson:"furl"`
	// UserFields holds udf1..udf10
	UserFields [MaxUserFields]string `json:"udf" bson:"udf"`
	// Hash is the lowercase hex SHA-512 digest
	Hash string `json:"hash" bson:"hash"`
	// Endpoint is the gateway payment URL for the configured environment
	Endpoint string `json:"endpoint" bson:"endpoint"`
}

// Form returns the fields posted to the gateway payment endpoint.
func (r *PaymentRequest) Form() url.Values {
	form := url.Values{}
	form.Set("key", r.Key)
	form.Set("txnid", r.TransactionId)
	form.Set("amount", r.Amount)
	form.Set("productinfo", r.ProductInfo)
	form.Set("firstname", r.FirstName)
	form.Set("email", r.Email)
	form.Set("phone", r.Phone)
	form.Set("surl", r.SuccessUrl)
	form.Set("furl", r.FailureUrl)
	for i, value := range r.UserFields {
		form.Set(fmt.Sprintf("udf%d", i+1), value)
	}
	form.Set("hash", r.Hash)
	return form
}
