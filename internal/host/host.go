package host

import (
	"context"
	"errors"

	"github.com/project-kessel/rolemapper/internal/roleattr"
)

var (
	// ErrClientNotFound is returned when a client identifier does not resolve
	ErrClientNotFound = errors.New("client not found")

	// ErrSessionNotFound is returned when a user session identifier does not resolve
	ErrSessionNotFound = errors.New("user session not found")
)

// Realm is an isolated namespace of users, clients and roles
type Realm struct {
	Name string
}

// Client is an application registered in a realm
type Client struct {
	// ID is the internal identifier
	ID string

	// ClientID is the public OAuth client_id
	ClientID string
}

// User is an authenticated end user
type User struct {
	ID       string
	Username string
}

// ClientSession binds a user session to one client
type ClientSession struct {
	Client *Client
}

// UserSession is the login session tokens are being built for
type UserSession struct {
	ID    string
	User  *User
	Realm *Realm

	// AuthenticatedClientSessions are keyed by client ID.
	// Iteration order is unspecified.
	AuthenticatedClientSessions map[string]*ClientSession
}

// ClientSessionContext is the client session the current token request runs in.
// Hosts that cannot provide one pass nil.
type ClientSessionContext struct {
	ClientSession *ClientSession
}

// RoleSource returns the roles a user holds within a client
type RoleSource interface {
	ClientRoles(ctx context.Context, user *User, client *Client) ([]roleattr.Role, error)
}

// ClientLookup resolves clients by their public client_id
type ClientLookup interface {
	// ClientByClientID returns ErrClientNotFound when no such client exists
	ClientByClientID(ctx context.Context, realm *Realm, clientID string) (*Client, error)
}

// SessionLookup resolves user sessions by ID
type SessionLookup interface {
	// UserSession returns ErrSessionNotFound when no such session exists
	UserSession(ctx context.Context, sessionID string) (*UserSession, error)
}

// MapperModel is the stored configuration of one protocol mapper instance
type MapperModel struct {
	Name   string
	Config map[string]string
}
