// Package auth verifies capability-token chains on incoming requests and
// injects the authenticated subject into the request context. Route guards
// come in four flavors: chain-only (registration), builder (subject must
// exist in the builders store), user (subject must exist in the users
// store), and admin (subject must be the node itself).
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"go.uber.org/zap"

	"nildb/application/ports"
	"nildb/domain"
	"nildb/pkg/common"
	"nildb/pkg/errors"
	"nildb/pkg/nuc"
)

// Dotted command namespaces. A token authorizes an operation when its
// command equals the guard's declared command or extends it with further
// dotted segments.
const (
	CmdBuilders    = "nil.db.builders"
	CmdUsers       = "nil.db.users"
	CmdCollections = "nil.db.collections"
	CmdData        = "nil.db.data"
	CmdQueries     = "nil.db.queries"
	CmdSystem      = "nil.db.system"
)

// RevocationChecker reports whether any token hash in a chain is revoked.
type RevocationChecker interface {
	Revoked(ctx context.Context, hashes []string) (bool, string, error)
}

// Subject is the authenticated principal attached to a request.
type Subject struct {
	DID     domain.DID
	Chain   *nuc.Chain
	Builder *domain.Builder
}

type contextKey string

const subjectKey contextKey = "subject"

// GetSubject extracts the authenticated subject from a request context.
func GetSubject(ctx context.Context) (*Subject, error) {
	subject, ok := ctx.Value(subjectKey).(*Subject)
	if !ok || subject == nil {
		return nil, errors.Unauthorized("no authenticated subject on request")
	}
	return subject, nil
}

// SetSubject attaches a subject to a context. Exposed for handler tests.
func SetSubject(ctx context.Context, subject *Subject) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// Verifier checks bearer credentials against the node identity, the trust
// anchor, and the revocation registry.
type Verifier struct {
	node        domain.DID
	anchor      *secp256k1.PublicKey
	revocations RevocationChecker
	builders    ports.BuilderRepository
	users       ports.UserRepository
	logger      *zap.Logger
}

// NewVerifier wires the chain verifier.
func NewVerifier(node domain.DID, anchor *secp256k1.PublicKey, revocations RevocationChecker, builders ports.BuilderRepository, users ports.UserRepository, logger *zap.Logger) *Verifier {
	return &Verifier{
		node:        node,
		anchor:      anchor,
		revocations: revocations,
		builders:    builders,
		users:       users,
		logger:      logger,
	}
}

// Verify runs the full credential check for one request: bearer scheme,
// per-token signatures, chain structure, command coverage, and revocation.
func (v *Verifier) Verify(r *http.Request, command string) (*Subject, error) {
	credential, err := bearerCredential(r)
	if err != nil {
		return nil, err
	}

	chain, err := nuc.ParseEnvelope(credential)
	if err != nil {
		return nil, err
	}
	if err := chain.Validate(v.node, v.anchor); err != nil {
		return nil, err
	}

	if !nuc.Attenuates(chain.Invocation().Command, command) {
		return nil, errors.Forbidden("token command does not attenuate " + command)
	}

	revoked, reason, err := v.revocations.Revoked(r.Context(), chain.Hashes())
	if err != nil {
		v.logger.Error("revocation lookup failed", zap.Error(err))
		return nil, err
	}
	if revoked {
		return nil, errors.Unauthorized(reason)
	}

	return &Subject{DID: chain.Subject(), Chain: chain}, nil
}

// RequireSubject admits any principal with a valid chain for the command.
// Used where the subject is not expected to exist yet, builder registration
// above all.
func (v *Verifier) RequireSubject(command string) func(http.Handler) http.Handler {
	return v.guard(command, func(ctx context.Context, subject *Subject) error {
		return nil
	})
}

// RequireBuilder admits registered builders only and attaches the builder
// record to the subject. An absent record means the caller never completed
// registration, so the credential does not authenticate anyone.
func (v *Verifier) RequireBuilder(command string) func(http.Handler) http.Handler {
	return v.guard(command, func(ctx context.Context, subject *Subject) error {
		builder, err := v.builders.FindByID(ctx, subject.DID)
		if err != nil {
			if errors.IsKind(err, errors.KindDocumentNotFound) {
				return errors.Unauthorized("subject is not a registered builder")
			}
			return err
		}
		subject.Builder = builder
		return nil
	})
}

// RequireUser admits data owners: the subject must exist in the users
// store. User records come into existence when a builder first uploads
// documents owned by them.
func (v *Verifier) RequireUser(command string) func(http.Handler) http.Handler {
	return v.guard(command, func(ctx context.Context, subject *Subject) error {
		if _, err := v.users.FindByID(ctx, subject.DID); err != nil {
			if errors.IsKind(err, errors.KindDocumentNotFound) {
				return errors.Unauthorized("subject is not a known user")
			}
			return err
		}
		return nil
	})
}

// RequireAdmin admits only the node's own identity.
func (v *Verifier) RequireAdmin(command string) func(http.Handler) http.Handler {
	return v.guard(command, func(ctx context.Context, subject *Subject) error {
		if !subject.DID.Equal(v.node) {
			return errors.Forbidden("operation is restricted to the node operator")
		}
		return nil
	})
}

func (v *Verifier) guard(command string, admit func(context.Context, *Subject) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := v.Verify(r, command)
			if err == nil {
				err = admit(r.Context(), subject)
			}
			if err != nil {
				v.logger.Debug("request rejected",
					zap.String("path", r.URL.Path),
					zap.String("command", command),
					zap.Error(err),
				)
				common.Fail(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetSubject(r.Context(), subject)))
		})
	}
}

func bearerCredential(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.Unauthorized("missing Authorization header")
	}
	scheme, credential, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(credential) == "" {
		return "", errors.Unauthorized("Authorization header is not a bearer credential")
	}
	return strings.TrimSpace(credential), nil
}
