package internal

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	transactionIdPrefix = "TXN"
	// 80 random bits; with the prefix the id stays within the gateway's 25 character txnid limit
	transactionIdBytes = 10
)

// IdGenerator returns a new transaction id.
type IdGenerator func() (string, error)

// NewTransactionId returns "TXN" followed by 20 random hex digits. The id is URL-safe and
// unpredictable; uniqueness against stored transactions is checked by the caller.
func NewTransactionId() (string, error) {
	bytes := make([]byte, transactionIdBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate transaction id: %w", err)
	}
	return transactionIdPrefix + hex.EncodeToString(bytes), nil
}
