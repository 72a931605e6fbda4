package httpfixture

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRuleBasedProvider_ExactMatch(t *testing.T) {
	provider := NewRuleBasedProvider([]HTTPFixtureRule{
		{
			Request: FixtureRequest{
				Method: "GET",
				URL:    "https://attrs.example.com/roles/admin",
			},
			Response: Fixture{
				StatusCode: 200,
				Headers:    map[string]string{"Content-Type": "application/json"},
				Body:       `{"department": ["IT"]}`,
			},
		},
	})

	fixture := provider.GetFixture(httptest.NewRequest("GET", "https://attrs.example.com/roles/admin", nil))
	if fixture == nil {
		t.Fatal("expected fixture, got nil")
	}
	if fixture.Body != `{"department": ["IT"]}` {
		t.Errorf("Body = %q", fixture.Body)
	}

	if provider.GetFixture(httptest.NewRequest("POST", "https://attrs.example.com/roles/admin", nil)) != nil {
		t.Error("expected no fixture for a different method")
	}
}

func TestRuleBasedProvider_PatternMatch(t *testing.T) {
	provider := NewRuleBasedProvider([]HTTPFixtureRule{
		{
			Request:  FixtureRequest{Method: "*", URL: "https://attrs.example.com/roles/.*", URLType: "pattern"},
			Response: Fixture{StatusCode: 200, Body: `{}`},
		},
	})

	tests := []struct {
		url       string
		wantMatch bool
	}{
		{"https://attrs.example.com/roles/admin", true},
		{"https://attrs.example.com/roles/", true},
		{"https://attrs.example.com/users/alice", false},
		{"https://evil.example.com/https://attrs.example.com/roles/x", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got := provider.GetFixture(httptest.NewRequest("GET", tt.url, nil)) != nil
			if got != tt.wantMatch {
				t.Errorf("match = %v, want %v", got, tt.wantMatch)
			}
		})
	}
}

func TestRuleBasedProvider_HeaderMatch(t *testing.T) {
	provider := NewRuleBasedProvider([]HTTPFixtureRule{
		{
			Request: FixtureRequest{
				URL:     "https://attrs.example.com/roles/admin",
				Headers: map[string]string{"Authorization": "Bearer test"},
			},
			Response: Fixture{StatusCode: 200},
		},
	})

	req := httptest.NewRequest("GET", "https://attrs.example.com/roles/admin", nil)
	if provider.GetFixture(req) != nil {
		t.Error("expected no fixture without the header")
	}
	req.Header.Set("Authorization", "Bearer test")
	if provider.GetFixture(req) == nil {
		t.Error("expected fixture with the header")
	}
}

func TestTransport(t *testing.T) {
	t.Run("serves fixtures", func(t *testing.T) {
		transport := NewTransport(TransportConfig{
			Provider: FuncProvider(func(req *http.Request) *Fixture {
				return &Fixture{Body: "hello"}
			}),
			Strict: true,
		})

		resp, err := (&http.Client{Transport: transport}).Get("https://attrs.example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		if string(body) != "hello" {
			t.Errorf("body = %q, want hello", body)
		}
	})

	t.Run("strict mode rejects unknown requests", func(t *testing.T) {
		transport := NewTransport(TransportConfig{
			Provider: NewRuleBasedProvider(nil),
			Strict:   true,
		})
		if _, err := (&http.Client{Transport: transport}).Get("https://attrs.example.com/"); err == nil {
			t.Error("expected error in strict mode")
		}
	})

	t.Run("falls back when not strict", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))
		defer server.Close()

		transport := NewTransport(TransportConfig{
			Provider: NewRuleBasedProvider(nil),
			Fallback: http.DefaultTransport,
		})
		resp, err := (&http.Client{Transport: transport}).Get(server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusTeapot {
			t.Errorf("StatusCode = %d, want 418", resp.StatusCode)
		}
	})
}
