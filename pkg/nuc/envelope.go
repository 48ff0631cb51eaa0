package nuc

import (
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"nildb/domain"
	"nildb/pkg/errors"
)

// envelopeSeparator joins compact tokens inside one bearer credential,
// root first, invocation last. "/" cannot occur inside base64url segments.
const envelopeSeparator = "/"

// Chain is a parsed token envelope: one root token, zero or more
// delegations, and the final invocation token.
type Chain struct {
	Tokens []*Token
}

// ParseEnvelope splits and parses a bearer credential into its chain.
// Every token's own signature is checked during parsing.
func ParseEnvelope(credential string) (*Chain, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, errors.Unauthorized("empty token envelope")
	}

	parts := strings.Split(credential, envelopeSeparator)
	tokens := make([]*Token, 0, len(parts))
	for _, part := range parts {
		token, err := ParseToken(part)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return &Chain{Tokens: tokens}, nil
}

// Root returns the outermost token.
func (c *Chain) Root() *Token {
	return c.Tokens[0]
}

// Invocation returns the innermost token, the one naming the command being
// exercised against this node.
func (c *Chain) Invocation() *Token {
	return c.Tokens[len(c.Tokens)-1]
}

// Subject is the principal the chain speaks for.
func (c *Chain) Subject() domain.DID {
	return c.Invocation().Subject
}

// Hashes lists every token hash, for the revocation lookup.
func (c *Chain) Hashes() []string {
	hashes := make([]string, len(c.Tokens))
	for i, token := range c.Tokens {
		hashes[i] = token.Hash
	}
	return hashes
}

// Validate checks the chain structure against this node's identity and the
// configured trust anchor:
//
//   - audience of token i must equal issuer of token i+1,
//   - the invocation's audience must be this node,
//   - every token must speak for the same subject,
//   - each link's command must attenuate its parent's,
//   - the root must be issued by the trust anchor (PaymentRequired
//     otherwise, signalling a missing subscription).
func (c *Chain) Validate(node domain.DID, anchor *secp256k1.PublicKey) error {
	for i := 0; i < len(c.Tokens)-1; i++ {
		current, next := c.Tokens[i], c.Tokens[i+1]
		if !current.Audience.Equal(next.Issuer) {
			return errors.Unauthorized("token chain is not linked: audience does not match the next issuer")
		}
		if !current.Subject.Equal(next.Subject) {
			return errors.Unauthorized("token chain changes subject mid-delegation")
		}
		if !Attenuates(next.Command, current.Command) {
			return errors.Forbidden("delegated command does not attenuate its parent")
		}
	}

	if !c.Invocation().Audience.Equal(node) {
		return errors.Unauthorized("invocation token is not addressed to this node")
	}

	anchorDID := DIDFromPublicKey(anchor)
	if !c.Root().Issuer.Equal(anchorDID) {
		return errors.PaymentRequired("token chain is not rooted at the trust anchor")
	}
	return nil
}
