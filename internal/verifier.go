package internal

import "storefront/entity"

// Verifier checks gateway callbacks against the merchant credential.
// It has no side effects: verifying the same callback twice gives the same verdict.
type Verifier struct {
	hasher *Hasher
}

func NewVerifier(credential *entity.MerchantCredential) *Verifier {
	return &Verifier{
		hasher: NewHasher(credential.Key(), credential.Salt()),
	}
}

// Verify recomputes the response hash over the callback's own fields. The amount is taken
// as the gateway sent it, only normalized to two decimals; an amount that cannot be parsed
// is hashed as received and so fails to match.
func (v *Verifier) Verify(callback *entity.PaymentCallback) entity.Verdict {
	amount, err := FormatAmount(callback.Amount)
	if err != nil {
		amount = callback.Amount
	}
	if callback.Hash == "" || !v.hasher.Matches(v.hasher.ResponseString(callback, amount), callback.Hash) {
		return entity.Rejected(entity.DigestMismatch)
	}
	return entity.Verified(callback.TransactionId, callback.Status)
}
