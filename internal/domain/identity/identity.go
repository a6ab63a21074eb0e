// Package identity defines the opaque caller descriptor handed to the engine
// by the authentication layer. The engine never authenticates anyone itself.
package identity

import "github.com/google/uuid"

// Identity describes who is acting: an authenticated user or an anonymous
// session. Exactly one of UserID / SessionToken is meaningful depending on
// Authenticated.
type Identity struct {
	UserID        uuid.UUID
	SessionToken  string
	Authenticated bool
}

// User returns an authenticated identity for the given user id.
func User(id uuid.UUID) Identity {
	return Identity{UserID: id, Authenticated: true}
}

// Guest returns an anonymous identity for the given session token.
func Guest(token string) Identity {
	return Identity{SessionToken: token}
}

// Valid reports whether the identity carries enough information to own a cart:
// a user id when authenticated, a session token otherwise.
func (id Identity) Valid() bool {
	if id.Authenticated {
		return id.UserID != uuid.Nil
	}
	return id.SessionToken != ""
}
