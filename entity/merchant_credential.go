package entity

import "strings"

type Environment string

const (
	Sandbox    Environment = "sandbox"
	Production Environment = "production"
)

const (
	sandboxPaymentUrl    = "https://test.payu.in/_payment"
	productionPaymentUrl = "https://secure.payu.in/_payment"
	sandboxApiUrl        = "https://test.payu.in/merchant/postservice.php?form=2"
	productionApiUrl     = "https://info.payu.in/merchant/postservice.php?form=2"
)

// MerchantCredential is the process-wide merchant identity used to sign requests
// and verify callbacks. It is built once at startup and never mutated.
type MerchantCredential struct {
	key         string
	salt        string
	environment Environment
}

// NewMerchantCredential returns a ConfigurationError when the key or the salt is missing
// or the environment is not one of sandbox/production.
func NewMerchantCredential(key, salt string, environment Environment) (*MerchantCredential, error) {
	if strings.TrimSpace(key) == "" {
		return nil, &ConfigurationError{Field: "merchant key"}
	}
	if strings.TrimSpace(salt) == "" {
		return nil, &ConfigurationError{Field: "merchant salt"}
	}
	switch environment {
	case Sandbox, Production:
	default:
		return nil, &ConfigurationError{Field: "merchant environment", Reason: string(environment)}
	}
	return &MerchantCredential{
		key:         key,
		salt:        salt,
		environment: environment,
	}, nil
}

func (c *MerchantCredential) Key() string {
	return c.key
}

func (c *MerchantCredential) Salt() string {
	return c.salt
}

func (c *MerchantCredential) Environment() Environment {
	return c.environment
}

// PaymentUrl is the endpoint the browser posts the signed form to.
func (c *MerchantCredential) PaymentUrl() string {
	if c.environment == Production {
		return productionPaymentUrl
	}
	return sandboxPaymentUrl
}

// ApiUrl is the server-to-server endpoint for status queries and refunds.
func (c *MerchantCredential) ApiUrl() string {
	if c.environment == Production {
		return productionApiUrl
	}
	return sandboxApiUrl
}
