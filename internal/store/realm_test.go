package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-kessel/rolemapper/internal/host"
	"github.com/project-kessel/rolemapper/internal/roleattr"
)

func loadFixture(t *testing.T) *RealmStore {
	t.Helper()
	file, err := LoadRealmFile("testdata/realm.yaml")
	require.NoError(t, err)
	s, err := NewRealmStore(file)
	require.NoError(t, err)
	return s
}

func TestRealmStore(t *testing.T) {
	ctx := context.Background()
	s := loadFixture(t)

	t.Run("realm", func(t *testing.T) {
		assert.Equal(t, "acme", s.Realm().Name)
	})

	t.Run("client lookup", func(t *testing.T) {
		c, err := s.ClientByClientID(ctx, s.Realm(), "portal")
		require.NoError(t, err)
		assert.Equal(t, &host.Client{ID: "c-portal", ClientID: "portal"}, c)

		_, err = s.ClientByClientID(ctx, s.Realm(), "unknown")
		assert.True(t, errors.Is(err, host.ErrClientNotFound))

		_, err = s.ClientByClientID(ctx, &host.Realm{Name: "other"}, "portal")
		assert.True(t, errors.Is(err, host.ErrClientNotFound))
	})

	t.Run("session lookup", func(t *testing.T) {
		sess, err := s.UserSession(ctx, "s-alice")
		require.NoError(t, err)
		assert.Equal(t, "u-alice", sess.User.ID)
		assert.Equal(t, "acme", sess.Realm.Name)
		assert.Len(t, sess.AuthenticatedClientSessions, 2)
		assert.Equal(t, "billing", sess.AuthenticatedClientSessions["c-billing"].Client.ClientID)

		_, err = s.UserSession(ctx, "nope")
		assert.True(t, errors.Is(err, host.ErrSessionNotFound))
	})

	t.Run("client roles follow grant order", func(t *testing.T) {
		sess, err := s.UserSession(ctx, "s-alice")
		require.NoError(t, err)
		portal, err := s.ClientByClientID(ctx, nil, "portal")
		require.NoError(t, err)

		roles, err := s.ClientRoles(ctx, sess.User, portal)
		require.NoError(t, err)
		assert.Equal(t, []roleattr.Role{{ID: "r-admin", Name: "admin"}, {ID: "r-user", Name: "user"}}, roles)
	})

	t.Run("user without grants", func(t *testing.T) {
		portal, err := s.ClientByClientID(ctx, nil, "portal")
		require.NoError(t, err)
		roles, err := s.ClientRoles(ctx, &host.User{ID: "u-carol"}, portal)
		require.NoError(t, err)
		assert.Empty(t, roles)
	})

	t.Run("attributes keep empty lists and absent values apart", func(t *testing.T) {
		attrs, err := s.RoleAttributes(ctx, roleattr.Role{ID: "r-auditor", Name: "auditor"})
		require.NoError(t, err)
		assert.Equal(t, []string{"eu"}, attrs["region"])
		assert.NotNil(t, attrs["shift"])
		assert.Empty(t, attrs["shift"])
		assert.Nil(t, attrs["retired"])

		attrs, err = s.RoleAttributes(ctx, roleattr.Role{ID: "r-guest", Name: "guest"})
		require.NoError(t, err)
		assert.Nil(t, attrs)
	})

	t.Run("attributes are copies", func(t *testing.T) {
		attrs, err := s.RoleAttributes(ctx, roleattr.Role{ID: "r-admin"})
		require.NoError(t, err)
		attrs["department"][0] = "mutated"

		again, err := s.RoleAttributes(ctx, roleattr.Role{ID: "r-admin"})
		require.NoError(t, err)
		assert.Equal(t, []string{"IT", "Security"}, again["department"])
	})
}

func TestRealmStore_Build(t *testing.T) {
	ctx := context.Background()
	s := loadFixture(t)

	sess, err := s.UserSession(ctx, "s-bob")
	require.NoError(t, err)
	portal, err := s.ClientByClientID(ctx, nil, "portal")
	require.NoError(t, err)
	roles, err := s.ClientRoles(ctx, sess.User, portal)
	require.NoError(t, err)

	got := roleattr.Build(ctx, roles, s, roleattr.Options{})
	assert.Equal(t, roleattr.ClaimValue{"auditor": {"region": {"eu"}}}, got)

	got = roleattr.Build(ctx, roles, s, roleattr.Options{IncludeEmptyAttributes: true})
	assert.Equal(t, roleattr.ClaimValue{
		"guest":   {},
		"auditor": {"region": {"eu"}, "shift": {}},
	}, got)
}

func TestRealmStore_Replace(t *testing.T) {
	ctx := context.Background()
	s := loadFixture(t)

	err := s.Replace(&RealmFile{
		Realm:   "acme",
		Clients: []ClientEntry{{ClientID: "portal"}},
	})
	require.NoError(t, err)

	_, err = s.UserSession(ctx, "s-alice")
	assert.True(t, errors.Is(err, host.ErrSessionNotFound))

	c, err := s.ClientByClientID(ctx, nil, "portal")
	require.NoError(t, err)
	assert.Equal(t, "portal", c.ID)
}

func TestParseRealm(t *testing.T) {
	t.Run("json document", func(t *testing.T) {
		file, err := ParseRealm([]byte(`{"realm":"acme","clients":[{"client_id":"portal","roles":[{"name":"admin","attributes":{"level":["5"]}}]}]}`))
		require.NoError(t, err)

		s, err := NewRealmStore(file)
		require.NoError(t, err)
		attrs, err := s.RoleAttributes(context.Background(), roleattr.Role{ID: "portal/admin"})
		require.NoError(t, err)
		assert.Equal(t, roleattr.Attributes{"level": {"5"}}, attrs)
	})

	invalid := []struct {
		name string
		doc  string
	}{
		{"missing realm", `clients: []`},
		{"unknown client grant", "realm: acme\nusers:\n  - username: alice\n    client_roles:\n      portal: [admin]\n"},
		{"unknown session user", "realm: acme\nsessions:\n  - id: s-1\n    username: ghost\n"},
		{"duplicate client", "realm: acme\nclients:\n  - client_id: portal\n  - client_id: portal\n"},
		{"duplicate role name", "realm: acme\nclients:\n  - client_id: portal\n    roles:\n      - {id: r-1, name: admin}\n      - {id: r-2, name: admin}\n"},
		{"unknown role grant", "realm: acme\nclients:\n  - client_id: portal\n    roles:\n      - name: admin\nusers:\n  - username: alice\n    client_roles:\n      portal: [admin, owner]\n"},
		{"duplicate user", "realm: acme\nusers:\n  - username: alice\n  - username: alice\n"},
		{"duplicate session", "realm: acme\nusers:\n  - username: alice\nsessions:\n  - {id: s-1, username: alice}\n  - {id: s-1, username: alice}\n"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			file, err := ParseRealm([]byte(tt.doc))
			require.NoError(t, err)
			_, err = NewRealmStore(file)
			assert.Error(t, err)
		})
	}

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := ParseRealm([]byte("realm: [unterminated"))
		assert.Error(t, err)
	})
}
