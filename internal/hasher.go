package internal

import (
	"crypto/subtle"
	"fmt"
	"gitee.com/golang-module/dongle"
	"github.com/shopspring/decimal"
	"storefront/entity"
	"strings"
)

const (
	slotDelimiter = "|"

	// reserved empty slots between email and salt in the request hash
	requestReservedSlots = 6
	// reserved empty slots between status and email in the response hash
	responseReservedSlots = 11
)

type slot struct {
	name  string
	value string
}

func reserved(count int) []slot {
	slots := make([]slot, count)
	for i := range slots {
		slots[i].name = fmt.Sprintf("reserved%d", i+1)
	}
	return slots
}

func joinSlots(slots []slot) string {
	values := make([]string, len(slots))
	for i, s := range slots {
		values[i] = s.value
	}
	return strings.Join(values, slotDelimiter)
}

// Hasher builds canonical strings for one merchant key and salt and signs them with SHA-512.
type Hasher struct {
	key  string
	salt string
}

func NewHasher(key, salt string) *Hasher {
	return &Hasher{
		key:  key,
		salt: salt,
	}
}

// RequestString is the outbound canonical string:
// key|txnid|amount|productinfo|firstname|email|<6 reserved>|salt
func (h *Hasher) RequestString(request *entity.PaymentRequest) string {
	slots := []slot{
		{"key", h.key},
		{"txnid", request.TransactionId},
		{"amount", request.Amount},
		{"productinfo", request.ProductInfo},
		{"firstname", request.FirstName},
		{"email", request.Email},
	}
	slots = append(slots, reserved(requestReservedSlots)...)
	slots = append(slots, slot{"salt", h.salt})
	return joinSlots(slots)
}

// ResponseString is the inbound canonical string, the request layout in reverse with
// the status after the salt: salt|status|<11 reserved>|email|firstname|productinfo|amount|txnid|key
func (h *Hasher) ResponseString(callback *entity.PaymentCallback, amount string) string {
	slots := []slot{
		{"salt", h.salt},
		{"status", callback.Status},
	}
	slots = append(slots, reserved(responseReservedSlots)...)
	slots = append(slots,
		slot{"email", callback.Email},
		slot{"firstname", callback.FirstName},
		slot{"productinfo", callback.ProductInfo},
		slot{"amount", amount},
		slot{"txnid", callback.TransactionId},
		slot{"key", h.key},
	)
	return joinSlots(slots)
}

// CommandString is the canonical string of a server-to-server API command: key|command|var1|salt
func (h *Hasher) CommandString(command, var1 string) string {
	return joinSlots([]slot{
		{"key", h.key},
		{"command", command},
		{"var1", var1},
		{"salt", h.salt},
	})
}

// Digest returns the lowercase hex SHA-512 of the canonical string.
func (h *Hasher) Digest(canonical string) string {
	return strings.ToLower(dongle.Encrypt.FromString(canonical).BySha512().ToHexString())
}

// Matches compares the digest of canonical with a received digest, ignoring case.
// The comparison time does not depend on where the digests differ.
func (h *Hasher) Matches(canonical, received string) bool {
	expected := h.Digest(canonical)
	received = strings.ToLower(strings.TrimSpace(received))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}

// FormatAmount renders a decimal amount with exactly two fraction digits.
// Halves are rounded away from zero: "100.005" becomes "100.01", "100.001" becomes "100.00".
func FormatAmount(amount string) (string, error) {
	value, err := parseAmount(amount)
	if err != nil {
		return "", err
	}
	return value.StringFixed(2), nil
}

// parseAmount accepts plain decimal notation only; exponents are rejected.
func parseAmount(amount string) (decimal.Decimal, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" || strings.ContainsAny(amount, "eE") {
		return decimal.Zero, fmt.Errorf("%w: %q", entity.ErrInvalidAmount, amount)
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", entity.ErrInvalidAmount, amount)
	}
	return value, nil
}

// compareAmounts returns -1, 0 or +1 like decimal.Cmp; unparsable amounts are an error.
func compareAmounts(a, b string) (int, error) {
	ad, err := parseAmount(a)
	if err != nil {
		return 0, err
	}
	bd, err := parseAmount(b)
	if err != nil {
		return 0, err
	}
	return ad.Cmp(bd), nil
}
