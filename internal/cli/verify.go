package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/project-kessel/rolemapper/internal/roleattr"
	"github.com/project-kessel/rolemapper/internal/verify"
)

// verifyOptions holds the flags of the verify command
type verifyOptions struct {
	issuer    string
	jwksURL   string
	claimName string
	timeout   time.Duration
}

// verifiedToken is the printed outcome of a verification
type verifiedToken struct {
	Subject        string              `json:"sub"`
	Audience       []string            `json:"aud,omitempty"`
	TokenType      string              `json:"typ,omitempty"`
	ExpiresAt      time.Time           `json:"exp"`
	RoleAttributes roleattr.ClaimValue `json:"role_attributes"`
}

// NewVerifyCmd creates the verify command
func NewVerifyCmd() *cobra.Command {
	opts := &verifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify [token]",
		Short: "Verify a token against the issuer's JWKS and print its role attributes",
		Long: `Verify the signature, issuer and expiry of an access or ID token and print
the role attributes claim it carries. The token is read from stdin when no
argument is given.

Examples:
  rolemapper verify --issuer http://localhost:8080 eyJhbGciOi...

  rolemapper claims --session s-alice --kinds access | jq -r '.[0].token' | \
    rolemapper verify --issuer http://localhost:8080 --claim-name roles_meta`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := readToken(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runVerify(cmd.Context(), opts, token, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.issuer, "issuer", "", "expected issuer URL")
	cmd.Flags().StringVar(&opts.jwksURL, "jwks-url", "", "JWKS URL (default: <issuer>/.well-known/jwks.json)")
	cmd.Flags().StringVar(&opts.claimName, "claim-name", roleattr.DefaultClaimName, "role attributes claim name")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "time limit for fetching keys and verifying")
	_ = cmd.MarkFlagRequired("issuer")

	return cmd
}

func runVerify(ctx context.Context, opts *verifyOptions, token string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	verifier, err := verify.NewVerifier(ctx, verify.Config{
		Issuer:    opts.issuer,
		JWKSURL:   opts.jwksURL,
		ClaimName: opts.claimName,
	})
	if err != nil {
		return err
	}

	result, err := verifier.Verify(ctx, token)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(verifiedToken{
		Subject:        result.Subject,
		Audience:       result.Audience,
		TokenType:      result.TokenType,
		ExpiresAt:      result.ExpiresAt,
		RoleAttributes: result.RoleAttributes,
	})
}

// readToken takes the token from the argument or the first line of stdin
func readToken(args []string, in io.Reader) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", fmt.Errorf("no token given")
	}
	return token, nil
}
