// Package nuc implements the capability token engine: ES256K-signed
// delegation chains carrying hierarchical commands, parsed from the bearer
// envelope and checked for signature linkage, trust-anchor rooting,
// attenuation, and revocation.
package nuc

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/golang-jwt/jwt/v5"
)

// AlgES256K names the secp256k1 ECDSA signing method used by every token.
const AlgES256K = "ES256K"

// SigningMethodES256K signs and verifies JWS payloads with secp256k1 keys.
// golang-jwt does not ship the method, so it is registered here.
var SigningMethodES256K = &signingMethodES256K{}

func init() {
	jwt.RegisterSigningMethod(AlgES256K, func() jwt.SigningMethod {
		return SigningMethodES256K
	})
}

type signingMethodES256K struct{}

func (m *signingMethodES256K) Alg() string {
	return AlgES256K
}

// Verify checks a raw 64-byte r||s signature against a *secp256k1.PublicKey.
func (m *signingMethodES256K) Verify(signingString string, sig []byte, key any) error {
	pub, ok := key.(*secp256k1.PublicKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	if len(sig) != 64 {
		return jwt.ErrSignatureInvalid
	}

	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow {
		return jwt.ErrSignatureInvalid
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return jwt.ErrSignatureInvalid
	}

	hash := sha256.Sum256([]byte(signingString))
	if !ecdsa.NewSignature(&r, &s).Verify(hash[:], pub) {
		return jwt.ErrSignatureInvalid
	}
	return nil
}

// Sign produces a raw 64-byte r||s signature with a *secp256k1.PrivateKey.
func (m *signingMethodES256K) Sign(signingString string, key any) ([]byte, error) {
	priv, ok := key.(*secp256k1.PrivateKey)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}

	hash := sha256.Sum256([]byte(signingString))
	sig := ecdsa.Sign(priv, hash[:])

	r := sig.R()
	s := sig.S()
	rb := r.Bytes()
	sb := s.Bytes()

	out := make([]byte, 0, 64)
	out = append(out, rb[:]...)
	out = append(out, sb[:]...)
	return out, nil
}
