package nuc

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"nildb/domain"
	"nildb/pkg/errors"
)

// Claims is the payload of one chain token. Issuer, audience, and subject
// are DIDs; cmd is the dotted command the token speaks for.
type Claims struct {
	jwt.RegisteredClaims
	Command  string         `json:"cmd"`
	Policies []any          `json:"pol,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	Nonce    string         `json:"nonce,omitempty"`
	Proofs   []string       `json:"prf,omitempty"`
}

// Token is one verified element of a chain.
type Token struct {
	Raw      string
	Hash     string
	Claims   *Claims
	Issuer   domain.DID
	Audience domain.DID
	Subject  domain.DID
	Command  string
}

// ParseToken parses and signature-checks a single compact token. The
// signing key is recovered from the issuer DID inside the payload, so a
// token vouches for itself; chain-level linkage is checked separately.
func ParseToken(raw string) (*Token, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, issuerKeyfunc,
		jwt.WithValidMethods([]string{AlgES256K}),
	)
	if err != nil || !parsed.Valid {
		return nil, errors.Wrap(errors.KindUnauthorized, "token parse or signature check failed", err)
	}

	issuer, err := domain.ParseDID(claims.Issuer)
	if err != nil {
		return nil, errors.Unauthorized("token issuer is not a DID")
	}
	subject, err := domain.ParseDID(claims.Subject)
	if err != nil {
		return nil, errors.Unauthorized("token subject is not a DID")
	}
	if len(claims.Audience) != 1 {
		return nil, errors.Unauthorized("token must carry exactly one audience")
	}
	audience, err := domain.ParseDID(claims.Audience[0])
	if err != nil {
		return nil, errors.Unauthorized("token audience is not a DID")
	}
	if claims.Command == "" {
		return nil, errors.Unauthorized("token carries no command")
	}

	digest := sha256.Sum256([]byte(raw))
	return &Token{
		Raw:      raw,
		Hash:     hex.EncodeToString(digest[:]),
		Claims:   claims,
		Issuer:   issuer,
		Audience: audience,
		Subject:  subject,
		Command:  claims.Command,
	}, nil
}

func issuerKeyfunc(t *jwt.Token) (any, error) {
	claims, ok := t.Claims.(*Claims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}
	issuer, err := domain.ParseDID(claims.Issuer)
	if err != nil {
		return nil, err
	}
	return PublicKeyFromDID(issuer)
}

// Sign mints a compact token from claims. Production nodes only verify;
// signing is used by tests and by operator tooling.
func Sign(claims *Claims, key *Keypair) (string, error) {
	return jwt.NewWithClaims(SigningMethodES256K, claims).SignedString(key.Private())
}

// Attenuates reports whether child narrows parent: equal, or a
// dot-separated prefix extension (a.b.c attenuates a.b but not a.x).
func Attenuates(child, parent string) bool {
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+".")
}
