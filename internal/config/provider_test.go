package config

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-kessel/rolemapper/internal/host"
	"github.com/project-kessel/rolemapper/internal/mapper"
	"github.com/project-kessel/rolemapper/internal/service"
)

const testRealm = "../store/testdata/realm.yaml"

func testConfig() *Config {
	return &Config{
		Realm: testRealm,
		Issuer: IssuerConfig{
			URL:     "https://sso.example.com/realms/acme",
			TTL:     "5m",
			KeyType: "EC-P256",
		},
		AttributeSource: AttributeSourceConfig{Type: "realm"},
	}
}

// issueUserInfo issues a userinfo response and decodes its claims
func issueUserInfo(t *testing.T, p *Provider, sessionID, clientID string) map[string]any {
	t.Helper()
	ts, err := p.TokenService()
	require.NoError(t, err)

	tokens, err := ts.IssueTokens(context.Background(), &service.IssueRequest{
		SessionID:  sessionID,
		ClientID:   clientID,
		TokenKinds: []host.TokenKind{host.TokenKindUserInfo},
	})
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(tokens[host.TokenKindUserInfo].Value), &body))
	return body
}

func TestProvider_TokenService(t *testing.T) {
	t.Run("default mapper uses realm attributes", func(t *testing.T) {
		p := NewProvider(testConfig())
		p.SetObserver(service.NoOpObserver())

		body := issueUserInfo(t, p, "s-alice", "portal")
		assert.Equal(t, map[string]any{
			"admin": map[string]any{"department": []any{"IT", "Security"}, "level": []any{"5"}},
			"user":  map[string]any{"department": []any{"Sales"}},
		}, body["role_attributes"])
		assert.Equal(t, "u-alice", body["sub"])
	})

	t.Run("configured mappers", func(t *testing.T) {
		cfg := testConfig()
		cfg.Mappers = []MapperConfig{
			{
				Name: "roles",
				Type: mapper.ProviderID,
				Config: map[string]string{
					mapper.ClaimNameProperty:              " roles_meta ",
					mapper.IncludeEmptyAttributesProperty: "TRUE",
				},
				AttributeFilter: &AttributeFilterConfig{Deny: []string{"shift"}},
			},
			{Name: "username", Type: "oidc-usermodel-username-mapper"},
		}
		p := NewProvider(cfg)
		p.SetObserver(service.NoOpObserver())

		body := issueUserInfo(t, p, "s-bob", "portal")
		assert.Equal(t, map[string]any{
			"guest":   map[string]any{},
			"auditor": map[string]any{"region": []any{"eu"}},
		}, body["roles_meta"])
		assert.Equal(t, "bob", body["preferred_username"])
		assert.NotContains(t, body, "role_attributes")
	})

	t.Run("user without grants gets no claim", func(t *testing.T) {
		p := NewProvider(testConfig())
		p.SetObserver(service.NoOpObserver())

		body := issueUserInfo(t, p, "s-carol", "portal")
		assert.NotContains(t, body, "role_attributes")
	})

	t.Run("lua attributes through fixtures", func(t *testing.T) {
		cfg := testConfig()
		cfg.AttributeSource = AttributeSourceConfig{
			Type: "lua",
			Script: `
				function attributes(role)
					local response, err = http.get(config.get("base_url") .. "/roles/" .. role.id)
					if response == nil then error(err) end
					if response.status == 404 then return nil end
					return json.decode(response.body)
				end
			`,
			Config: map[string]any{"base_url": "https://attrs.example.com"},
		}
		cfg.Fixtures = []FixtureConfig{
			{
				Type:     "http_rule",
				Request:  FixtureRequestConfig{Method: "GET", URL: "https://attrs.example.com/roles/r-admin"},
				Response: FixtureResponseConfig{StatusCode: 200, Body: `{"clearance": ["top"]}`},
			},
			{
				Type:     "http_rule",
				Request:  FixtureRequestConfig{Method: "GET", URL: "https://attrs.example.com/roles/.*", URLType: "pattern"},
				Response: FixtureResponseConfig{StatusCode: 404},
			},
		}
		p := NewProvider(cfg)
		p.SetObserver(service.NoOpObserver())

		body := issueUserInfo(t, p, "s-alice", "portal")
		assert.Equal(t, map[string]any{
			"admin": map[string]any{"clearance": []any{"top"}},
		}, body["role_attributes"])
	})

	t.Run("cached lua attributes", func(t *testing.T) {
		for _, cacheType := range []string{"memory", "distributed"} {
			t.Run(cacheType, func(t *testing.T) {
				cfg := testConfig()
				cfg.AttributeSource = AttributeSourceConfig{
					Type:   "lua",
					Script: `function attributes(role) return {source = {"lua"}} end`,
					Cache: &AttributeCacheConfig{
						Type:      cacheType,
						TTL:       "5m",
						GroupName: "provider-test-" + uuid.NewString(),
					},
				}
				p := NewProvider(cfg)
				p.SetObserver(service.NoOpObserver())

				for range 2 {
					body := issueUserInfo(t, p, "s-bob", "portal")
					assert.Equal(t, map[string]any{
						"guest":   map[string]any{"source": []any{"lua"}},
						"auditor": map[string]any{"source": []any{"lua"}},
					}, body["role_attributes"])
				}
			})
		}
	})

	t.Run("shares components", func(t *testing.T) {
		p := NewProvider(testConfig())
		p.SetObserver(service.NoOpObserver())

		ts1, err := p.TokenService()
		require.NoError(t, err)
		ts2, err := p.TokenService()
		require.NoError(t, err)
		assert.Same(t, ts1, ts2)
		assert.Len(t, ts1.Mappers(), 1)
	})
}

func TestProvider_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing realm", func(c *Config) { c.Realm = "" }},
		{"unreadable realm", func(c *Config) { c.Realm = "testdata/missing.yaml" }},
		{"bad key type", func(c *Config) { c.Issuer.KeyType = "DSA" }},
		{"bad ttl", func(c *Config) { c.Issuer.TTL = "soon" }},
		{"missing issuer url", func(c *Config) { c.Issuer.URL = "" }},
		{"unknown attribute source", func(c *Config) { c.AttributeSource.Type = "ldap" }},
		{"lua without script", func(c *Config) { c.AttributeSource.Type = "lua" }},
		{"unknown mapper", func(c *Config) { c.Mappers = []MapperConfig{{Name: "x", Type: "oidc-hardcoded-claim-mapper"}} }},
		{"duplicate mapper name", func(c *Config) {
			c.Mappers = []MapperConfig{{Name: "x"}, {Name: "x"}}
		}},
		{"cached realm source", func(c *Config) { c.AttributeSource.Cache = &AttributeCacheConfig{TTL: "1m"} }},
		{"bad cache ttl", func(c *Config) {
			c.AttributeSource = AttributeSourceConfig{
				Type:   "lua",
				Script: "function attributes(role) return nil end",
				Cache:  &AttributeCacheConfig{TTL: "later"},
			}
		}},
		{"unknown cache type", func(c *Config) {
			c.AttributeSource = AttributeSourceConfig{
				Type:   "lua",
				Script: "function attributes(role) return nil end",
				Cache:  &AttributeCacheConfig{Type: "redis"},
			}
		}},
		{"bad role filter", func(c *Config) {
			c.Mappers = []MapperConfig{{Name: "x", RoleFilter: "role.name +"}}
		}},
		{"bad fixture", func(c *Config) {
			c.AttributeSource = AttributeSourceConfig{Type: "lua", Script: "function attributes(role) return nil end"}
			c.Fixtures = []FixtureConfig{{Type: "jwks"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(cfg)
			p := NewProvider(cfg)
			p.SetObserver(service.NoOpObserver())

			_, err := p.TokenService()
			assert.Error(t, err)
		})
	}
}

func TestProvider_JWKSRefreshInterval(t *testing.T) {
	p := NewProvider(&Config{})
	d, err := p.JWKSRefreshInterval()
	require.NoError(t, err)
	assert.Equal(t, "1m0s", d.String())

	p = NewProvider(&Config{Server: ServerConfig{JWKSRefreshInterval: "often"}})
	_, err = p.JWKSRefreshInterval()
	assert.Error(t, err)
}
