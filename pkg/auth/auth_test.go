package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nildb/domain"
	"nildb/pkg/errors"
	"nildb/pkg/nuc"
)

type fakeRevocations struct {
	revoked map[string]bool
	err     error
}

func (f *fakeRevocations) Revoked(_ context.Context, hashes []string) (bool, string, error) {
	if f.err != nil {
		return false, "", f.err
	}
	for _, hash := range hashes {
		if f.revoked[hash] {
			return true, "token " + hash + " revoked", nil
		}
	}
	return false, "", nil
}

type fakeBuilders struct {
	builders map[domain.DID]*domain.Builder
}

func (f *fakeBuilders) Insert(context.Context, *domain.Builder) error { return nil }

func (f *fakeBuilders) FindByID(_ context.Context, id domain.DID) (*domain.Builder, error) {
	builder, ok := f.builders[id]
	if !ok {
		return nil, errors.DocumentNotFound(id.String())
	}
	return builder, nil
}

func (f *fakeBuilders) SetName(context.Context, domain.DID, string) error          { return nil }
func (f *fakeBuilders) AddCollection(context.Context, domain.DID, string) error    { return nil }
func (f *fakeBuilders) RemoveCollection(context.Context, domain.DID, string) error { return nil }
func (f *fakeBuilders) AddQuery(context.Context, domain.DID, string) error         { return nil }
func (f *fakeBuilders) RemoveQuery(context.Context, domain.DID, string) error      { return nil }
func (f *fakeBuilders) Delete(context.Context, domain.DID) error                   { return nil }

type fakeUsers struct {
	users map[domain.DID]*domain.User
}

func (f *fakeUsers) FindByID(_ context.Context, id domain.DID) (*domain.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, errors.DocumentNotFound(id.String())
	}
	return user, nil
}

func (f *fakeUsers) AddData(context.Context, domain.DID, []domain.DataReference, []domain.LogEntry) error {
	return nil
}

func (f *fakeUsers) RemoveData(context.Context, domain.DID, []domain.DataReference, []domain.LogEntry) error {
	return nil
}

func (f *fakeUsers) AppendLogs(context.Context, domain.DID, []domain.LogEntry) error { return nil }
func (f *fakeUsers) DeleteIfEmpty(context.Context, domain.DID) (bool, error)         { return false, nil }

func mustKeypair(t *testing.T) *nuc.Keypair {
	t.Helper()
	kp, err := nuc.GenerateKeypair()
	require.NoError(t, err)
	return kp
}

func mintToken(t *testing.T, issuer *nuc.Keypair, audience, subject domain.DID, cmd string) string {
	t.Helper()
	raw, err := nuc.Sign(&nuc.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer.DID().String(),
			Audience: jwt.ClaimStrings{audience.String()},
			Subject:  subject.String(),
		},
		Command: cmd,
		Nonce:   "nonce",
	}, issuer)
	require.NoError(t, err)
	return raw
}

// envelope mints anchor → subject for cmd, addressed to node.
func envelope(t *testing.T, anchor, subject *nuc.Keypair, node domain.DID, cmd string) string {
	t.Helper()
	root := mintToken(t, anchor, subject.DID(), subject.DID(), cmd)
	invocation := mintToken(t, subject, node, subject.DID(), cmd)
	return root + "/" + invocation
}

type verifierFixture struct {
	verifier *Verifier
	anchor   *nuc.Keypair
	node     domain.DID
	builders *fakeBuilders
	users    *fakeUsers
	revoked  *fakeRevocations
}

func newFixture(t *testing.T) *verifierFixture {
	t.Helper()
	anchor := mustKeypair(t)
	node := mustKeypair(t).DID()
	builders := &fakeBuilders{builders: make(map[domain.DID]*domain.Builder)}
	users := &fakeUsers{users: make(map[domain.DID]*domain.User)}
	revoked := &fakeRevocations{revoked: make(map[string]bool)}
	return &verifierFixture{
		verifier: NewVerifier(node, anchor.Public(), revoked, builders, users, zap.NewNop()),
		anchor:   anchor,
		node:     node,
		builders: builders,
		users:    users,
		revoked:  revoked,
	}
}

func serve(guard func(http.Handler) http.Handler, credential string) *httptest.ResponseRecorder {
	handler := guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := GetSubject(r.Context()); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequireBuilderAdmitsRegisteredBuilder(t *testing.T) {
	fx := newFixture(t)
	builder := mustKeypair(t)
	fx.builders.builders[builder.DID()] = &domain.Builder{ID: builder.DID(), Name: "acme"}

	cred := envelope(t, fx.anchor, builder, fx.node, CmdData+".read")
	rec := serve(fx.verifier.RequireBuilder(CmdData+".read"), cred)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireBuilderRejectsUnregistered(t *testing.T) {
	fx := newFixture(t)
	builder := mustKeypair(t)

	// A valid chain for a subject with no builder record does not
	// authenticate anyone.
	cred := envelope(t, fx.anchor, builder, fx.node, CmdData+".read")
	rec := serve(fx.verifier.RequireBuilder(CmdData+".read"), cred)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireUserRejectsUnknown(t *testing.T) {
	fx := newFixture(t)
	user := mustKeypair(t)

	cred := envelope(t, fx.anchor, user, fx.node, CmdUsers)
	rec := serve(fx.verifier.RequireUser(CmdUsers), cred)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardRejectsMissingHeader(t *testing.T) {
	fx := newFixture(t)
	rec := serve(fx.verifier.RequireSubject(CmdBuilders), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardRejectsNonBearerScheme(t *testing.T) {
	fx := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	fx.verifier.RequireSubject(CmdBuilders)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardRejectsCommandOutsideGrant(t *testing.T) {
	fx := newFixture(t)
	builder := mustKeypair(t)

	// Token speaks for queries, route requires data.
	cred := envelope(t, fx.anchor, builder, fx.node, CmdQueries)
	rec := serve(fx.verifier.RequireSubject(CmdData), cred)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGuardAdmitsFinerCommand(t *testing.T) {
	fx := newFixture(t)
	builder := mustKeypair(t)

	// A token naming a specific operation passes the guard of its
	// enclosing namespace.
	cred := envelope(t, fx.anchor, builder, fx.node, CmdData+".create")
	rec := serve(fx.verifier.RequireSubject(CmdData), cred)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardRejectsBroaderCommand(t *testing.T) {
	fx := newFixture(t)
	builder := mustKeypair(t)

	// A token for a broader namespace than the guard's does not attenuate
	// it and is refused.
	cred := envelope(t, fx.anchor, builder, fx.node, "nil.db")
	rec := serve(fx.verifier.RequireSubject(CmdData), cred)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGuardRejectsRevokedToken(t *testing.T) {
	fx := newFixture(t)
	builder := mustKeypair(t)

	cred := envelope(t, fx.anchor, builder, fx.node, CmdData)
	chain, err := nuc.ParseEnvelope(cred)
	require.NoError(t, err)
	fx.revoked.revoked[chain.Root().Hash] = true

	rec := serve(fx.verifier.RequireSubject(CmdData), cred)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardRejectsUntrustedRoot(t *testing.T) {
	fx := newFixture(t)
	rogue := mustKeypair(t)
	builder := mustKeypair(t)

	cred := envelope(t, rogue, builder, fx.node, CmdData)
	rec := serve(fx.verifier.RequireSubject(CmdData), cred)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestRequireAdmin(t *testing.T) {
	anchor := mustKeypair(t)
	nodeKey := mustKeypair(t)
	builders := &fakeBuilders{builders: make(map[domain.DID]*domain.Builder)}
	users := &fakeUsers{users: make(map[domain.DID]*domain.User)}
	revoked := &fakeRevocations{revoked: make(map[string]bool)}
	verifier := NewVerifier(nodeKey.DID(), anchor.Public(), revoked, builders, users, zap.NewNop())

	// The node invoking on itself is admitted.
	cred := envelope(t, anchor, nodeKey, nodeKey.DID(), CmdSystem)
	rec := serve(verifier.RequireAdmin(CmdSystem), cred)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Any other principal is not.
	other := mustKeypair(t)
	cred = envelope(t, anchor, other, nodeKey.DID(), CmdSystem)
	rec = serve(verifier.RequireAdmin(CmdSystem), cred)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetSubjectMissing(t *testing.T) {
	_, err := GetSubject(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindUnauthorized))
}

func TestSubjectInjection(t *testing.T) {
	fx := newFixture(t)
	user := mustKeypair(t)
	fx.users.users[user.DID()] = &domain.User{ID: user.DID()}

	var subjectDID domain.DID
	handler := fx.verifier.RequireUser(CmdUsers)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := GetSubject(r.Context())
		require.NoError(t, err)
		subjectDID = subject.DID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+envelope(t, fx.anchor, user, fx.node, CmdUsers+".read"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, subjectDID.Equal(user.DID()))
}
