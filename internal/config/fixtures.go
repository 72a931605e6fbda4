package config

import (
	"fmt"

	"github.com/project-kessel/rolemapper/internal/httpfixture"
)

// BuildHTTPFixtureProvider creates a fixture provider from fixture configurations.
// Returns nil if no fixtures are configured (normal production mode).
func BuildHTTPFixtureProvider(fixtures []FixtureConfig) (httpfixture.FixtureProvider, error) {
	if len(fixtures) == 0 {
		return nil, nil
	}

	rules := make([]httpfixture.HTTPFixtureRule, 0, len(fixtures))
	for i, f := range fixtures {
		switch f.Type {
		case "http_rule", "":
		default:
			return nil, fmt.Errorf("fixture %d: unknown type %s (supported: http_rule)", i, f.Type)
		}
		if f.Request.URL == "" {
			return nil, fmt.Errorf("fixture %d: request url is required", i)
		}

		rules = append(rules, httpfixture.HTTPFixtureRule{
			Request: httpfixture.FixtureRequest{
				Method:  f.Request.Method,
				URL:     f.Request.URL,
				URLType: f.Request.URLType,
				Headers: f.Request.Headers,
			},
			Response: httpfixture.Fixture{
				StatusCode: f.Response.StatusCode,
				Headers:    f.Response.Headers,
				Body:       f.Response.Body,
			},
		})
	}

	return httpfixture.NewRuleBasedProvider(rules), nil
}
