package issuer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/project-kessel/rolemapper/internal/clock"
	"github.com/project-kessel/rolemapper/internal/service"
)

// ContentTypeJSON is the content type of userinfo responses
const ContentTypeJSON = "application/json"

// UserInfoIssuerConfig is the configuration for creating a userinfo issuer
type UserInfoIssuerConfig struct {
	// Clock is the time source for token timestamps
	// If nil, uses system clock
	Clock clock.Clock
}

// UserInfoIssuer renders mapper claims as a plain JSON userinfo response.
// The response is not signed and does not expire.
type UserInfoIssuer struct {
	clock clock.Clock
}

// NewUserInfoIssuer creates a new userinfo issuer
func NewUserInfoIssuer(cfg UserInfoIssuerConfig) *UserInfoIssuer {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}

	return &UserInfoIssuer{
		clock: clk,
	}
}

// Issue implements the Issuer interface
func (i *UserInfoIssuer) Issue(ctx context.Context, issueCtx *service.IssueContext) (*service.Token, error) {
	if issueCtx.Session == nil || issueCtx.Session.User == nil {
		return nil, fmt.Errorf("cannot build userinfo without an authenticated user")
	}

	body := issueCtx.Claims.Copy()
	if body == nil {
		body = make(map[string]any)
	}
	body["sub"] = issueCtx.Session.User.ID

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal claims: %w", err)
	}

	return &service.Token{
		Kind:        issueCtx.Kind,
		Value:       string(data),
		ContentType: ContentTypeJSON,
		IssuedAt:    i.clock.Now(),
	}, nil
}

// PublicKeys implements the Issuer interface.
// Userinfo responses are not signed.
func (i *UserInfoIssuer) PublicKeys(ctx context.Context) ([]service.PublicKey, error) {
	return []service.PublicKey{}, nil
}
