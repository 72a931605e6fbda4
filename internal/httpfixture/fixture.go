package httpfixture

import (
	"net/http"
	"regexp"
	"strings"
)

// Fixture is a canned HTTP response
type Fixture struct {
	StatusCode int               `json:"status_code" yaml:"status_code" koanf:"status_code"`
	Headers    map[string]string `json:"headers" yaml:"headers" koanf:"headers"`
	Body       string            `json:"body" yaml:"body" koanf:"body"`
}

// FixtureProvider returns the fixture for a request, or nil if it has none
type FixtureProvider interface {
	GetFixture(req *http.Request) *Fixture
}

// FixtureRequest describes which requests a rule answers.
// URLType is "exact" (default) or "pattern" for an anchored regular expression.
// Method "*" or "" matches any method.
type FixtureRequest struct {
	Method  string            `json:"method" yaml:"method" koanf:"method"`
	URL     string            `json:"url" yaml:"url" koanf:"url"`
	URLType string            `json:"url_type" yaml:"url_type" koanf:"url_type"`
	Headers map[string]string `json:"headers" yaml:"headers" koanf:"headers"`
}

// HTTPFixtureRule pairs a request matcher with its response
type HTTPFixtureRule struct {
	Request  FixtureRequest `json:"request" yaml:"request" koanf:"request"`
	Response Fixture        `json:"response" yaml:"response" koanf:"response"`
}

type compiledRule struct {
	rule    HTTPFixtureRule
	pattern *regexp.Regexp
}

// RuleBasedProvider answers requests from an ordered rule list; the first matching rule wins
type RuleBasedProvider struct {
	rules []compiledRule
}

// NewRuleBasedProvider creates a provider from rules.
// Pattern rules whose expression does not compile never match.
func NewRuleBasedProvider(rules []HTTPFixtureRule) *RuleBasedProvider {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		cr := compiledRule{rule: r}
		if r.Request.URLType == "pattern" {
			if re, err := regexp.Compile("^" + r.Request.URL + "$"); err == nil {
				cr.pattern = re
			}
		}
		compiled = append(compiled, cr)
	}
	return &RuleBasedProvider{rules: compiled}
}

// GetFixture implements FixtureProvider
func (p *RuleBasedProvider) GetFixture(req *http.Request) *Fixture {
	for i := range p.rules {
		if p.rules[i].matches(req) {
			f := p.rules[i].rule.Response
			return &f
		}
	}
	return nil
}

func (r *compiledRule) matches(req *http.Request) bool {
	method := r.rule.Request.Method
	if method != "" && method != "*" && !strings.EqualFold(method, req.Method) {
		return false
	}

	url := req.URL.String()
	switch r.rule.Request.URLType {
	case "pattern":
		if r.pattern == nil || !r.pattern.MatchString(url) {
			return false
		}
	default:
		if r.rule.Request.URL != url {
			return false
		}
	}

	for name, value := range r.rule.Request.Headers {
		if req.Header.Get(name) != value {
			return false
		}
	}
	return true
}

// FuncProvider adapts a function to FixtureProvider
type FuncProvider func(req *http.Request) *Fixture

// GetFixture implements FixtureProvider
func (f FuncProvider) GetFixture(req *http.Request) *Fixture {
	return f(req)
}
