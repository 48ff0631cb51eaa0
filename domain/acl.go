package domain

import "nildb/pkg/errors"

// AclEntry grants a single DID a combination of access bits on one owned
// document.
type AclEntry struct {
	Grantee DID  `bson:"grantee" json:"grantee"`
	Read    bool `bson:"read" json:"read"`
	Write   bool `bson:"write" json:"write"`
	Execute bool `bson:"execute" json:"execute"`
}

// AccessBit names one of the three ACL bits.
type AccessBit string

const (
	AccessRead    AccessBit = "read"
	AccessWrite   AccessBit = "write"
	AccessExecute AccessBit = "execute"
)

// Grants reports whether the entry carries the given bit.
func (e AclEntry) Grants(bit AccessBit) bool {
	switch bit {
	case AccessRead:
		return e.Read
	case AccessWrite:
		return e.Write
	case AccessExecute:
		return e.Execute
	}
	return false
}

// ValidateAcl rejects lists carrying two entries for the same grantee.
func ValidateAcl(acl []AclEntry) error {
	seen := make(map[DID]struct{}, len(acl))
	for _, entry := range acl {
		key := NormalizeDID(string(entry.Grantee))
		if _, dup := seen[key]; dup {
			return errors.Validationf("acl contains duplicate grantee %s", entry.Grantee)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// FindAclEntry returns the entry for grantee, if any.
func FindAclEntry(acl []AclEntry, grantee DID) (AclEntry, bool) {
	for _, entry := range acl {
		if entry.Grantee.Equal(grantee) {
			return entry, true
		}
	}
	return AclEntry{}, false
}

// UpsertAclEntry replaces any existing entry for the same grantee and
// appends otherwise. The returned slice is a copy.
func UpsertAclEntry(acl []AclEntry, entry AclEntry) []AclEntry {
	out := make([]AclEntry, 0, len(acl)+1)
	replaced := false
	for _, existing := range acl {
		if existing.Grantee.Equal(entry.Grantee) {
			out = append(out, entry)
			replaced = true
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, entry)
	}
	return out
}

// AclOf reads a document's _acl value back into typed entries. Store reads
// surface the list as []any of generic maps.
func AclOf(value any) []AclEntry {
	switch v := value.(type) {
	case []AclEntry:
		return v
	case []any:
		entries := make([]AclEntry, 0, len(v))
		for _, element := range v {
			raw, ok := element.(map[string]any)
			if !ok {
				continue
			}
			grantee, _ := raw["grantee"].(string)
			read, _ := raw["read"].(bool)
			write, _ := raw["write"].(bool)
			execute, _ := raw["execute"].(bool)
			entries = append(entries, AclEntry{
				Grantee: DID(grantee),
				Read:    read,
				Write:   write,
				Execute: execute,
			})
		}
		return entries
	default:
		return nil
	}
}

// RemoveAclEntry drops the entry for grantee, reporting whether one existed.
func RemoveAclEntry(acl []AclEntry, grantee DID) ([]AclEntry, bool) {
	out := make([]AclEntry, 0, len(acl))
	removed := false
	for _, existing := range acl {
		if existing.Grantee.Equal(grantee) {
			removed = true
			continue
		}
		out = append(out, existing)
	}
	return out, removed
}
