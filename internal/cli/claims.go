package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/spf13/cobra"

	"github.com/project-kessel/rolemapper/internal/config"
	"github.com/project-kessel/rolemapper/internal/host"
	"github.com/project-kessel/rolemapper/internal/issuer"
	"github.com/project-kessel/rolemapper/internal/service"
)

// claimsOptions holds the flags of the claims command
type claimsOptions struct {
	sessionID string
	clientID  string
	kinds     []string
}

// issuedClaims is one issued token with its decoded claims
type issuedClaims struct {
	Kind        string         `json:"kind"`
	ContentType string         `json:"content_type"`
	Token       string         `json:"token,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	Claims      map[string]any `json:"claims"`
}

// NewClaimsCmd creates the claims command
func NewClaimsCmd() *cobra.Command {
	opts := &claimsOptions{}

	cmd := &cobra.Command{
		Use:   "claims",
		Short: "Issue tokens for a session and print their claims",
		Long: `Issue tokens for one realm session without starting a server and print
each token with its decoded claims as JSON.

Examples:
  # All token kinds for alice's session on the portal client
  rolemapper claims --realm ./realm.yaml --session s-alice --client portal

  # Only the userinfo response
  rolemapper claims --config ./rolemapper.yaml --session s-alice --kinds userinfo`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := config.NewLoaderWithFlags(resolveConfigPath(), cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg, err := loader.Get()
			if err != nil {
				return fmt.Errorf("failed to parse config: %w", err)
			}

			// Logs go to stderr so stdout stays valid JSON
			provider := config.NewProvider(cfg)
			observer, err := config.NewObserverWithLogger(cfg.Observability, config.NewLoggerTo(cfg.Observability, cmd.ErrOrStderr()))
			if err != nil {
				return fmt.Errorf("failed to create observer: %w", err)
			}
			provider.SetObserver(observer)

			return runClaims(cmd.Context(), provider, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.sessionID, "session", "", "user session ID")
	cmd.Flags().StringVar(&opts.clientID, "client", "", "client_id the tokens are issued to")
	cmd.Flags().StringSliceVar(&opts.kinds, "kinds", nil, "token kinds to issue (access, id, userinfo)")
	_ = cmd.MarkFlagRequired("session")

	config.RegisterFlags(cmd.Flags())

	return cmd
}

func runClaims(ctx context.Context, provider *config.Provider, opts *claimsOptions, out io.Writer) error {
	kinds, err := host.ParseTokenKinds(opts.kinds)
	if err != nil {
		return err
	}
	kinds = service.RequestedKinds(kinds)

	tokenService, err := provider.TokenService()
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	tokens, err := tokenService.IssueTokens(ctx, &service.IssueRequest{
		SessionID:  opts.sessionID,
		ClientID:   opts.clientID,
		TokenKinds: kinds,
	})
	if err != nil {
		return err
	}

	result := make([]issuedClaims, 0, len(kinds))
	for _, kind := range kinds {
		tok := tokens[kind]
		decoded, err := decodeClaims(tok)
		if err != nil {
			return fmt.Errorf("failed to decode %s token: %w", kind, err)
		}
		entry := issuedClaims{
			Kind:        string(kind),
			ContentType: tok.ContentType,
			Claims:      decoded,
		}
		if tok.ContentType == issuer.ContentTypeJWT {
			entry.Token = tok.Value
		}
		if !tok.ExpiresAt.IsZero() {
			expiresAt := tok.ExpiresAt
			entry.ExpiresAt = &expiresAt
		}
		result = append(result, entry)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// decodeClaims returns the claims of a signed JWT or a JSON userinfo body.
// Signatures are not checked; the token was issued in this process.
func decodeClaims(tok *service.Token) (map[string]any, error) {
	var raw []byte
	if tok.ContentType == issuer.ContentTypeJWT {
		parsed, err := jwt.ParseInsecure([]byte(tok.Value))
		if err != nil {
			return nil, err
		}
		raw, err = json.Marshal(parsed)
		if err != nil {
			return nil, err
		}
	} else {
		raw = []byte(tok.Value)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
