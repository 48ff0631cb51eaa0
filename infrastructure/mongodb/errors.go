package mongodb

import (
	stderrors "errors"

	"go.mongodb.org/mongo-driver/mongo"

	"nildb/pkg/errors"
)

// Server error codes the adapter classifies specially.
const (
	codeDuplicateKey          = 11000
	codeDuplicateKeyLegacy    = 11001
	codeDuplicateKeyUpdate    = 12582
	codeNamespaceExists       = 48
	codeCannotCreateIndex     = 67
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
)

// IsDuplicateWriteCode reports whether a per-write server code means a
// duplicate key. Duplicate failures are classified distinctly from all
// other write failures.
func IsDuplicateWriteCode(code int) bool {
	switch code {
	case codeDuplicateKey, codeDuplicateKeyLegacy, codeDuplicateKeyUpdate:
		return true
	}
	return false
}

// IsDuplicate reports whether err is a duplicate-key failure of any shape.
func IsDuplicate(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	if stderrors.As(err, &cmdErr) {
		return cmdErr.Code == codeNamespaceExists
	}
	return false
}

func mapIndexError(err error) error {
	var cmdErr mongo.CommandError
	if stderrors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case codeCannotCreateIndex, codeIndexOptionsConflict, codeIndexKeySpecsConflict:
			return errors.InvalidIndexOptions(cmdErr.Message)
		}
	}
	return errors.Database("create index failed", err)
}

// WrapWrite classifies a single-document write error: duplicates map to
// DuplicateEntry, everything else to DatabaseError.
func WrapWrite(message string, err error) error {
	if err == nil {
		return nil
	}
	if IsDuplicate(err) {
		return errors.Duplicate(message + ": already exists")
	}
	return errors.Database(message, err)
}

// WrapRead classifies a read error: a missing document surfaces as
// DocumentNotFound, everything else as DatabaseError.
func WrapRead(message, id string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return errors.DocumentNotFound(id)
	}
	return errors.Database(message, err)
}
