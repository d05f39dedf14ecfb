package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer computes receipt signatures as hex(HMAC-SHA256(secret, orderID|paymentID)).
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) mac(orderID, paymentID string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(orderID + "|" + paymentID))
	return h.Sum(nil)
}

func (s *Signer) Sign(orderID, paymentID string) string {
	return hex.EncodeToString(s.mac(orderID, paymentID))
}

// Verify compares in constant time. Malformed signatures never match.
func (s *Signer) Verify(r Receipt) bool {
	given, err := hex.DecodeString(r.Signature)
	if err != nil {
		return false
	}
	return hmac.Equal(s.mac(r.GatewayOrderID, r.GatewayPaymentID), given)
}
