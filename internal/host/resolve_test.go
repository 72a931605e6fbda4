package host

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	clients map[string]*Client
	err     error
}

func (f *fakeLookup) ClientByClientID(ctx context.Context, realm *Realm, clientID string) (*Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	if c, ok := f.clients[clientID]; ok {
		return c, nil
	}
	return nil, ErrClientNotFound
}

func TestResolveClient(t *testing.T) {
	ctx := context.Background()
	portal := &Client{ID: "c-1", ClientID: "portal"}
	billing := &Client{ID: "c-2", ClientID: "billing"}
	lookup := &fakeLookup{clients: map[string]*Client{"portal": portal, "billing": billing}}
	session := &UserSession{
		ID:    "s-1",
		Realm: &Realm{Name: "acme"},
		AuthenticatedClientSessions: map[string]*ClientSession{
			"c-2": {Client: billing},
		},
	}

	t.Run("prefers the client session context", func(t *testing.T) {
		csc := &ClientSessionContext{ClientSession: &ClientSession{Client: portal}}
		client, source, err := ResolveClient(ctx, lookup, NewToken(TokenKindAccess, "billing"), session, csc)

		require.NoError(t, err)
		assert.Same(t, portal, client)
		assert.Equal(t, ClientFromSessionContext, source)
	})

	t.Run("falls back to the issued-for client", func(t *testing.T) {
		client, source, err := ResolveClient(ctx, lookup, NewToken(TokenKindAccess, "portal"), session, nil)

		require.NoError(t, err)
		assert.Same(t, portal, client)
		assert.Equal(t, ClientFromIssuedFor, source)
	})

	t.Run("empty client session context is skipped", func(t *testing.T) {
		client, source, err := ResolveClient(ctx, lookup, NewToken(TokenKindID, "portal"), session, &ClientSessionContext{})

		require.NoError(t, err)
		assert.Same(t, portal, client)
		assert.Equal(t, ClientFromIssuedFor, source)
	})

	t.Run("unknown issued-for falls back to the user session", func(t *testing.T) {
		client, source, err := ResolveClient(ctx, lookup, NewToken(TokenKindAccess, "unknown"), session, nil)

		require.NoError(t, err)
		assert.Same(t, billing, client)
		assert.Equal(t, ClientFromUserSession, source)
	})

	t.Run("no issued-for falls back to the user session", func(t *testing.T) {
		client, source, err := ResolveClient(ctx, lookup, NewToken(TokenKindUserInfo, ""), session, nil)

		require.NoError(t, err)
		assert.Same(t, billing, client)
		assert.Equal(t, ClientFromUserSession, source)
	})

	t.Run("lookup failure is reported", func(t *testing.T) {
		broken := &fakeLookup{err: errors.New("db down")}
		_, _, err := ResolveClient(ctx, broken, NewToken(TokenKindAccess, "portal"), session, nil)

		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrClientUnresolved)
	})

	t.Run("nothing resolves", func(t *testing.T) {
		bare := &UserSession{ID: "s-2", Realm: &Realm{Name: "acme"}}
		_, _, err := ResolveClient(ctx, lookup, NewToken(TokenKindAccess, ""), bare, nil)

		assert.ErrorIs(t, err, ErrClientUnresolved)
	})
}

func TestParseTokenKind(t *testing.T) {
	for _, kind := range TokenKinds {
		got, err := ParseTokenKind(string(kind))
		require.NoError(t, err)
		assert.Equal(t, kind, got)
	}

	_, err := ParseTokenKind("refresh")
	assert.Error(t, err)
}

func TestParseTokenKinds(t *testing.T) {
	kinds, err := ParseTokenKinds([]string{"userinfo", "access"})
	require.NoError(t, err)
	assert.Equal(t, []TokenKind{TokenKindUserInfo, TokenKindAccess}, kinds)

	kinds, err = ParseTokenKinds(nil)
	require.NoError(t, err)
	assert.Empty(t, kinds)

	_, err = ParseTokenKinds([]string{"access", "refresh"})
	assert.Error(t, err)
}

func TestToken_SetClaim(t *testing.T) {
	token := NewToken(TokenKindAccess, "portal")
	token.SetClaim("role_attributes", map[string]any{"admin": map[string][]string{}})

	got := token.Claims()
	assert.Contains(t, got, "role_attributes")

	got["injected"] = true
	assert.NotContains(t, token.Claims(), "injected")
}
