package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"nildb/application/services"
	"nildb/domain"
	"nildb/pkg/auth"
	"nildb/pkg/common"
)

// UserHandler serves data owners: profile reads and document ACLs.
type UserHandler struct {
	service *services.UserService
	logger  *zap.Logger
}

func NewUserHandler(service *services.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{service: service, logger: logger}
}

type grantAccessRequest struct {
	Collection string     `json:"collection" validate:"required,uuid"`
	Document   string     `json:"document" validate:"required,uuid"`
	Acl        aclRequest `json:"acl" validate:"required"`
}

type revokeAccessRequest struct {
	Collection string `json:"collection" validate:"required,uuid"`
	Document   string `json:"document" validate:"required,uuid"`
	Grantee    string `json:"grantee" validate:"required"`
}

type readAccessRequest struct {
	Collection string `json:"collection" validate:"required,uuid"`
	Document   string `json:"document" validate:"required,uuid"`
}

// Profile returns the authenticated user's record.
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	user, err := h.service.Profile(r.Context(), subject.DID)
	if err != nil {
		common.Fail(w, err)
		return
	}
	common.OK(w, user)
}

// GrantAccess adds or overwrites an ACL entry on one owned document.
func (h *UserHandler) GrantAccess(w http.ResponseWriter, r *http.Request) {
	var req grantAccessRequest
	if err := decodeBody(r, &req); err != nil {
		common.Fail(w, err)
		return
	}

	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	entry, err := req.Acl.toEntry()
	if err != nil {
		common.Fail(w, err)
		return
	}
	if err := h.service.GrantAccess(r.Context(), subject.DID, req.Collection, req.Document, *entry); err != nil {
		common.Fail(w, err)
		return
	}
	common.NoContent(w)
}

// RevokeAccess removes a grantee's ACL entry from one owned document.
func (h *UserHandler) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	var req revokeAccessRequest
	if err := decodeBody(r, &req); err != nil {
		common.Fail(w, err)
		return
	}

	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	grantee, err := domain.ParseDID(req.Grantee)
	if err != nil {
		common.Fail(w, err)
		return
	}
	if err := h.service.RevokeAccess(r.Context(), subject.DID, req.Collection, req.Document, grantee); err != nil {
		common.Fail(w, err)
		return
	}
	common.NoContent(w)
}

// ReadAccess returns the ACL of one owned document.
func (h *UserHandler) ReadAccess(w http.ResponseWriter, r *http.Request) {
	var req readAccessRequest
	if err := decodeBody(r, &req); err != nil {
		common.Fail(w, err)
		return
	}

	subject, err := auth.GetSubject(r.Context())
	if err != nil {
		common.Fail(w, err)
		return
	}
	acl, err := h.service.ReadAccess(r.Context(), subject.DID, req.Collection, req.Document)
	if err != nil {
		common.Fail(w, err)
		return
	}
	common.OK(w, acl)
}
