package probe

import (
	"context"
	"log/slog"

	"github.com/project-kessel/rolemapper/internal/host"
	"github.com/project-kessel/rolemapper/internal/roleattr"
	"github.com/project-kessel/rolemapper/internal/service"
)

const (
	// TokenIssuanceEvent tags log records of token issuance requests
	TokenIssuanceEvent = "token_issuance"

	// RoleAttributesMappingEvent tags log records of protocol mapper invocations
	RoleAttributesMappingEvent = "role_attributes_mapping"
)

// loggingObserver creates request-scoped logging probes
type loggingObserver struct {
	service.NoOpApplicationObserver
	logger *slog.Logger
}

// LoggingObserverConfig configures the logging observer
type LoggingObserverConfig struct {
	// Logger is the base logger to use. If nil, uses slog.Default()
	Logger *slog.Logger
}

// NewLoggingObserver creates an application observer that logs all observability events
// using structured logging with slog.
func NewLoggingObserver(logger *slog.Logger) service.ApplicationObserver {
	return NewLoggingObserverWithConfig(LoggingObserverConfig{
		Logger: logger,
	})
}

// NewLoggingObserverWithConfig creates a logging observer with custom configuration
func NewLoggingObserverWithConfig(cfg LoggingObserverConfig) service.ApplicationObserver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &loggingObserver{
		logger: logger,
	}
}

func (o *loggingObserver) TokenIssuanceStarted(
	ctx context.Context,
	sessionID string,
	clientID string,
	kinds []host.TokenKind,
) (context.Context, service.TokenIssuanceProbe) {
	probeLogger := o.logger.With("event", TokenIssuanceEvent)

	probeLogger.LogAttrs(ctx, slog.LevelDebug, "Starting token issuance",
		slog.String("session_id", sessionID),
		slog.String("client_id", clientID),
		slog.Any("token_kinds", kinds),
	)

	return ctx, &loggingTokenIssuanceProbe{
		ctx:       ctx,
		logger:    probeLogger,
		sessionID: sessionID,
	}
}

// loggingTokenIssuanceProbe is a request-scoped probe that logs events for a single token issuance
type loggingTokenIssuanceProbe struct {
	service.NoOpTokenIssuanceProbe
	ctx       context.Context
	logger    *slog.Logger
	sessionID string
}

func (p *loggingTokenIssuanceProbe) SessionLookupFailed(err error) {
	p.logger.LogAttrs(p.ctx, slog.LevelWarn,
		"User session lookup failed",
		slog.String("session_id", p.sessionID),
		slog.String("error", err.Error()),
	)
}

func (p *loggingTokenIssuanceProbe) TokenKindIssuanceStarted(kind host.TokenKind) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"Issuing token",
		slog.String("token_kind", string(kind)),
	)
}

func (p *loggingTokenIssuanceProbe) TokenKindIssuanceSucceeded(kind host.TokenKind, token *service.Token) {
	attrs := []slog.Attr{
		slog.String("token_kind", string(kind)),
	}

	if token != nil && !token.ExpiresAt.IsZero() {
		attrs = append(attrs,
			slog.Time("issued_at", token.IssuedAt),
			slog.Time("expires_at", token.ExpiresAt),
		)
	}

	p.logger.LogAttrs(p.ctx, slog.LevelDebug, "Token issued successfully", attrs...)
}

func (p *loggingTokenIssuanceProbe) TokenKindIssuanceFailed(kind host.TokenKind, err error) {
	p.logger.LogAttrs(p.ctx, slog.LevelError,
		"Token issuance failed",
		slog.String("token_kind", string(kind)),
		slog.String("error", err.Error()),
	)
}

func (p *loggingTokenIssuanceProbe) IssuerNotFound(kind host.TokenKind, err error) {
	p.logger.LogAttrs(p.ctx, slog.LevelError,
		"No issuer found for token kind",
		slog.String("token_kind", string(kind)),
		slog.String("error", err.Error()),
	)
}

func (p *loggingTokenIssuanceProbe) End() {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug, "Token issuance completed")
}

// MappingStarted implements service.MapperObserver
func (o *loggingObserver) MappingStarted(
	ctx context.Context,
	mapperID string,
	kind host.TokenKind,
	session *host.UserSession,
) (context.Context, service.MappingProbe) {
	var sessionID string
	if session != nil {
		sessionID = session.ID
	}

	probeLogger := o.logger.With(
		"event", RoleAttributesMappingEvent,
		"mapper", mapperID,
		"token_kind", string(kind),
	)

	return ctx, &loggingMappingProbe{
		ctx:       ctx,
		logger:    probeLogger,
		sessionID: sessionID,
	}
}

// loggingMappingProbe logs the events of one mapper invocation
type loggingMappingProbe struct {
	service.NoOpMappingProbe
	ctx       context.Context
	logger    *slog.Logger
	sessionID string
}

func (p *loggingMappingProbe) ClientResolved(client *host.Client, source host.ClientSource) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"Resolved client for role attributes",
		slog.String("client_id", client.ClientID),
		slog.String("source", string(source)),
	)
}

func (p *loggingMappingProbe) ClientUnresolved(err error) {
	p.logger.LogAttrs(p.ctx, slog.LevelWarn,
		"Could not determine client for user session",
		slog.String("session_id", p.sessionID),
	)
}

func (p *loggingMappingProbe) NoClientRoles(client *host.Client) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"No client roles found for user",
		slog.String("client_id", client.ClientID),
	)
}

func (p *loggingMappingProbe) RoleSkipped(role roleattr.Role, err error) {
	p.logger.LogAttrs(p.ctx, slog.LevelWarn,
		"Error processing attributes for role",
		slog.String("role", role.Name),
		slog.String("error", err.Error()),
	)
}

func (p *loggingMappingProbe) RoleOmitted(role roleattr.Role) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"No attributes to include for role",
		slog.String("role", role.Name),
	)
}

func (p *loggingMappingProbe) Built(claimName string, roleCount int) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"Built role attributes claim value",
		slog.String("claim", claimName),
		slog.Int("roles", roleCount),
	)
}

func (p *loggingMappingProbe) ClaimAttached(claimName string, roleCount int) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"Added role attributes to token",
		slog.String("claim", claimName),
		slog.Int("roles", roleCount),
	)
}

func (p *loggingMappingProbe) ClaimOmitted(claimName string) {
	p.logger.LogAttrs(p.ctx, slog.LevelDebug,
		"No role attributes to add",
		slog.String("claim", claimName),
	)
}

func (p *loggingMappingProbe) MappingFailed(err error) {
	p.logger.LogAttrs(p.ctx, slog.LevelError,
		"Error processing role attributes for user session",
		slog.String("session_id", p.sessionID),
		slog.String("error", err.Error()),
	)
}
