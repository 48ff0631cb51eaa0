package nuc

import (
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"nildb/domain"
	"nildb/pkg/errors"
)

// DIDMethod is the method component of DIDs minted from secp256k1 keys.
const DIDMethod = "nil"

// Keypair wraps a secp256k1 private key and derives its DID identity.
type Keypair struct {
	priv *secp256k1.PrivateKey
}

// GenerateKeypair creates a fresh keypair. Used by tests and key rotation
// tooling; the node's own key comes from configuration.
func GenerateKeypair() (*Keypair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromHex loads a keypair from a 64-hex-character secret key.
func KeypairFromHex(secret string) (*Keypair, error) {
	raw, err := hex.DecodeString(secret)
	if err != nil || len(raw) != 32 {
		return nil, errors.Validation("secret key must be 64 hex characters")
	}
	return &Keypair{priv: secp256k1.PrivKeyFromBytes(raw)}, nil
}

// Private exposes the signing key for the ES256K method.
func (k *Keypair) Private() *secp256k1.PrivateKey {
	return k.priv
}

// Public returns the public half.
func (k *Keypair) Public() *secp256k1.PublicKey {
	return k.priv.PubKey()
}

// PublicKeyHex renders the compressed public key as 66 hex characters.
func (k *Keypair) PublicKeyHex() string {
	return hex.EncodeToString(k.priv.PubKey().SerializeCompressed())
}

// DID derives the keypair's DID identity.
func (k *Keypair) DID() domain.DID {
	return DIDFromPublicKey(k.priv.PubKey())
}

// DIDFromPublicKey mints the canonical DID for a public key.
func DIDFromPublicKey(pub *secp256k1.PublicKey) domain.DID {
	return domain.DID("did:" + DIDMethod + ":" + hex.EncodeToString(pub.SerializeCompressed()))
}

// PublicKeyFromDID recovers the public key embedded in a DID.
func PublicKeyFromDID(did domain.DID) (*secp256k1.PublicKey, error) {
	raw, err := hex.DecodeString(did.PublicKeyHex())
	if err != nil {
		return nil, errors.Unauthorized("token issuer DID does not carry a hex public key")
	}
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, errors.Unauthorized("token issuer DID does not carry a valid secp256k1 key")
	}
	return pub, nil
}

// PublicKeyFromHex parses a 66-hex-character compressed public key, as
// configured for the trust anchor.
func PublicKeyFromHex(compressed string) (*secp256k1.PublicKey, error) {
	raw, err := hex.DecodeString(compressed)
	if err != nil || len(raw) != 33 {
		return nil, errors.Validation("public key must be 66 hex characters")
	}
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, errors.Validation("public key is not a valid compressed secp256k1 point")
	}
	return pub, nil
}
