package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/almacart/commerce/internal/domain/identity"
)

// Identity headers. An authenticated caller carries X-User-ID (set by the
// auth proxy in front of this service); a guest carries X-Session-Token.
const (
	headerUserID       = "X-User-ID"
	headerSessionToken = "X-Session-Token"
)

// identityFrom resolves the caller's identity from request headers. A caller
// with both headers is authenticated, and the session token marks a guest
// cart to merge.
func identityFrom(r *http.Request) identity.Identity {
	if raw := r.Header.Get(headerUserID); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			ident := identity.User(id)
			ident.SessionToken = r.Header.Get(headerSessionToken)
			return ident
		}
	}
	return identity.Guest(r.Header.Get(headerSessionToken))
}
