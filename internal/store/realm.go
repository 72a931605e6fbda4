package store

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/project-kessel/rolemapper/internal/host"
	"github.com/project-kessel/rolemapper/internal/roleattr"
)

// RealmFile is the on-disk description of a realm.
// JSON files are accepted as well since JSON is a YAML subset.
type RealmFile struct {
	Realm    string         `yaml:"realm" json:"realm"`
	Clients  []ClientEntry  `yaml:"clients" json:"clients"`
	Users    []UserEntry    `yaml:"users" json:"users"`
	Sessions []SessionEntry `yaml:"sessions" json:"sessions"`
}

// ClientEntry declares a client and the roles defined on it
type ClientEntry struct {
	ID       string      `yaml:"id" json:"id"`
	ClientID string      `yaml:"client_id" json:"client_id"`
	Roles    []RoleEntry `yaml:"roles" json:"roles"`
}

// RoleEntry declares a client role.
// An attribute declared with a null value is kept as absent.
type RoleEntry struct {
	ID         string              `yaml:"id" json:"id"`
	Name       string              `yaml:"name" json:"name"`
	Attributes map[string][]string `yaml:"attributes" json:"attributes"`
}

// UserEntry declares a user and their role grants keyed by client_id
type UserEntry struct {
	ID          string              `yaml:"id" json:"id"`
	Username    string              `yaml:"username" json:"username"`
	ClientRoles map[string][]string `yaml:"client_roles" json:"client_roles"`
}

// SessionEntry declares a user session and the clients it authenticated to
type SessionEntry struct {
	ID       string   `yaml:"id" json:"id"`
	Username string   `yaml:"username" json:"username"`
	Clients  []string `yaml:"clients" json:"clients"`
}

type realmState struct {
	realm      *host.Realm
	clients    map[string]*host.Client        // by client_id
	roles      map[string][]roleattr.Role     // by client ID
	attributes map[string]roleattr.Attributes // by role ID
	users      map[string]*host.User          // by username
	grants     map[string]map[string][]string // user ID -> client ID -> role names
	sessions   map[string]*host.UserSession
}

// RealmStore serves one realm from memory. It implements host.RoleSource,
// host.ClientLookup, host.SessionLookup and roleattr.AttributeSource.
type RealmStore struct {
	mu    sync.RWMutex
	state *realmState
}

// NewRealmStore builds a store from a parsed realm file
func NewRealmStore(file *RealmFile) (*RealmStore, error) {
	state, err := buildState(file)
	if err != nil {
		return nil, err
	}
	return &RealmStore{state: state}, nil
}

// LoadRealmFile reads and parses a realm file
func LoadRealmFile(path string) (*RealmFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read realm file: %w", err)
	}
	return ParseRealm(data)
}

// ParseRealm parses a YAML or JSON realm document
func ParseRealm(data []byte) (*RealmFile, error) {
	var file RealmFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse realm: %w", err)
	}
	return &file, nil
}

// Replace swaps in a new realm. Readers see either the old or the new realm, never a mix.
func (s *RealmStore) Replace(file *RealmFile) error {
	state, err := buildState(file)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// Realm returns the realm served by this store
func (s *RealmStore) Realm() *host.Realm {
	return s.current().realm
}

func (s *RealmStore) current() *realmState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ClientByClientID implements host.ClientLookup
func (s *RealmStore) ClientByClientID(ctx context.Context, realm *host.Realm, clientID string) (*host.Client, error) {
	state := s.current()
	if realm != nil && realm.Name != state.realm.Name {
		return nil, fmt.Errorf("realm %s: %w", realm.Name, host.ErrClientNotFound)
	}
	client, ok := state.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", clientID, host.ErrClientNotFound)
	}
	return client, nil
}

// ClientRoles implements host.RoleSource
func (s *RealmStore) ClientRoles(ctx context.Context, user *host.User, client *host.Client) ([]roleattr.Role, error) {
	if user == nil || client == nil {
		return nil, fmt.Errorf("user and client are required")
	}
	state := s.current()

	granted := state.grants[user.ID][client.ID]
	if len(granted) == 0 {
		return nil, nil
	}

	// Grants are validated against the client's roles when the realm is built
	byName := make(map[string]roleattr.Role, len(state.roles[client.ID]))
	for _, r := range state.roles[client.ID] {
		byName[r.Name] = r
	}

	roles := make([]roleattr.Role, 0, len(granted))
	for _, name := range granted {
		if r, ok := byName[name]; ok {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

// RoleAttributes implements roleattr.AttributeSource.
// The returned mapping is a copy; unknown roles have no attributes.
func (s *RealmStore) RoleAttributes(ctx context.Context, role roleattr.Role) (roleattr.Attributes, error) {
	attrs, ok := s.current().attributes[role.ID]
	if !ok || attrs == nil {
		return nil, nil
	}
	out := make(roleattr.Attributes, len(attrs))
	for name, values := range attrs {
		if values == nil {
			out[name] = nil
			continue
		}
		out[name] = append([]string{}, values...)
	}
	return out, nil
}

// UserSession implements host.SessionLookup
func (s *RealmStore) UserSession(ctx context.Context, sessionID string) (*host.UserSession, error) {
	session, ok := s.current().sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, host.ErrSessionNotFound)
	}
	return session, nil
}

func buildState(file *RealmFile) (*realmState, error) {
	if file == nil {
		return nil, fmt.Errorf("realm file is required")
	}
	if file.Realm == "" {
		return nil, fmt.Errorf("realm name is required")
	}

	state := &realmState{
		realm:      &host.Realm{Name: file.Realm},
		clients:    make(map[string]*host.Client),
		roles:      make(map[string][]roleattr.Role),
		attributes: make(map[string]roleattr.Attributes),
		users:      make(map[string]*host.User),
		grants:     make(map[string]map[string][]string),
		sessions:   make(map[string]*host.UserSession),
	}

	for _, c := range file.Clients {
		if c.ClientID == "" {
			return nil, fmt.Errorf("client entry without client_id")
		}
		id := c.ID
		if id == "" {
			id = c.ClientID
		}
		if _, dup := state.clients[c.ClientID]; dup {
			return nil, fmt.Errorf("duplicate client %s", c.ClientID)
		}
		state.clients[c.ClientID] = &host.Client{ID: id, ClientID: c.ClientID}

		names := make(map[string]bool, len(c.Roles))
		for _, r := range c.Roles {
			if r.Name == "" {
				return nil, fmt.Errorf("client %s: role without name", c.ClientID)
			}
			if names[r.Name] {
				return nil, fmt.Errorf("client %s: duplicate role %s", c.ClientID, r.Name)
			}
			names[r.Name] = true
			roleID := r.ID
			if roleID == "" {
				roleID = c.ClientID + "/" + r.Name
			}
			state.roles[id] = append(state.roles[id], roleattr.Role{ID: roleID, Name: r.Name})
			if r.Attributes != nil {
				state.attributes[roleID] = roleattr.Attributes(r.Attributes)
			}
		}
	}

	for _, u := range file.Users {
		if u.Username == "" {
			return nil, fmt.Errorf("user entry without username")
		}
		if _, dup := state.users[u.Username]; dup {
			return nil, fmt.Errorf("duplicate user %s", u.Username)
		}
		id := u.ID
		if id == "" {
			id = u.Username
		}
		state.users[u.Username] = &host.User{ID: id, Username: u.Username}

		grants := make(map[string][]string, len(u.ClientRoles))
		for clientID, roleNames := range u.ClientRoles {
			client, ok := state.clients[clientID]
			if !ok {
				return nil, fmt.Errorf("user %s: unknown client %s", u.Username, clientID)
			}
			for _, name := range roleNames {
				if !hasRole(state.roles[client.ID], name) {
					return nil, fmt.Errorf("user %s: unknown role %s on client %s", u.Username, name, clientID)
				}
			}
			grants[client.ID] = roleNames
		}
		state.grants[id] = grants
	}

	for _, sess := range file.Sessions {
		if sess.ID == "" {
			return nil, fmt.Errorf("session entry without id")
		}
		if _, dup := state.sessions[sess.ID]; dup {
			return nil, fmt.Errorf("duplicate session %s", sess.ID)
		}
		user, ok := state.users[sess.Username]
		if !ok {
			return nil, fmt.Errorf("session %s: unknown user %s", sess.ID, sess.Username)
		}
		clientSessions := make(map[string]*host.ClientSession, len(sess.Clients))
		for _, clientID := range sess.Clients {
			client, ok := state.clients[clientID]
			if !ok {
				return nil, fmt.Errorf("session %s: unknown client %s", sess.ID, clientID)
			}
			clientSessions[client.ID] = &host.ClientSession{Client: client}
		}
		state.sessions[sess.ID] = &host.UserSession{
			ID:                          sess.ID,
			User:                        user,
			Realm:                       state.realm,
			AuthenticatedClientSessions: clientSessions,
		}
	}

	return state, nil
}

func hasRole(roles []roleattr.Role, name string) bool {
	for _, r := range roles {
		if r.Name == name {
			return true
		}
	}
	return false
}
