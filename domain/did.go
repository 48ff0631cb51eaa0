// Package domain holds the identifiers, ACL values, and record types shared
// by every layer of the node.
package domain

import (
	"encoding/hex"
	"strings"

	"nildb/pkg/errors"
)

// DID identifies a principal as did:<method>:<hex-public-key>. The canonical
// form keeps the hex part lowercase; equality is case-insensitive on hex.
type DID string

// ParseDID validates and normalizes a DID string.
func ParseDID(s string) (DID, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != "did" || parts[1] == "" || parts[2] == "" {
		return "", errors.Validationf("invalid DID %q: expected did:<method>:<hex-public-key>", s)
	}
	keyHex := strings.ToLower(parts[2])
	if _, err := hex.DecodeString(keyHex); err != nil {
		return "", errors.Validationf("invalid DID %q: key part is not hex", s)
	}
	return DID("did:" + parts[1] + ":" + keyHex), nil
}

// NormalizeDID lowercases the hex part without validating it. Used on values
// already trusted to be DIDs (store reads).
func NormalizeDID(s string) DID {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return DID(s)
	}
	return DID(s[:idx+1] + strings.ToLower(s[idx+1:]))
}

// Method returns the DID method, or "" when malformed.
func (d DID) Method() string {
	parts := strings.SplitN(string(d), ":", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}

// PublicKeyHex returns the hex key part, lowercased.
func (d DID) PublicKeyHex() string {
	idx := strings.LastIndex(string(d), ":")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(string(d)[idx+1:])
}

// Equal compares two DIDs case-insensitively on the hex part.
func (d DID) Equal(other DID) bool {
	return NormalizeDID(string(d)) == NormalizeDID(string(other))
}

func (d DID) String() string {
	return string(d)
}
