package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"

	"github.com/project-kessel/rolemapper/internal/host"
	"github.com/project-kessel/rolemapper/internal/service"
)

// TokenIssuer builds tokens for user sessions
type TokenIssuer interface {
	IssueTokens(ctx context.Context, req *service.IssueRequest) (map[host.TokenKind]*service.Token, error)
	Mappers() []service.MapperBinding
}

// TokenHandler serves token issuance and mapper listings over HTTP
type TokenHandler struct {
	tokens TokenIssuer
	logger *slog.Logger
}

// NewTokenHandler creates a token handler
func NewTokenHandler(tokens TokenIssuer, logger *slog.Logger) *TokenHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenHandler{tokens: tokens, logger: logger}
}

// IssueTokensRequest is the body of a token issuance request
type IssueTokensRequest struct {
	ClientID string `json:"client_id"`

	// TokenKinds defaults to access, id and userinfo
	TokenKinds []string `json:"token_kinds"`
}

// IssuedToken is one issued token in a response
type IssuedToken struct {
	Kind        string     `json:"kind"`
	Token       string     `json:"token"`
	ContentType string     `json:"content_type"`
	IssuedAt    time.Time  `json:"issued_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// IssueTokensResponse lists issued tokens in request order
type IssueTokensResponse struct {
	SessionID string        `json:"session_id"`
	Tokens    []IssuedToken `json:"tokens"`
}

// MapperInfo describes one configured mapper instance
type MapperInfo struct {
	Name       string             `json:"name"`
	Config     map[string]string  `json:"config,omitempty"`
	Descriptor service.Descriptor `json:"descriptor"`
}

// ListMappersResponse lists mapper instances in execution order
type ListMappersResponse struct {
	Mappers []MapperInfo `json:"mappers"`
}

// handleIssueTokens serves POST /v1/sessions/{session_id}/tokens
func (h *TokenHandler) handleIssueTokens(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	sessionID := pathParams["session_id"]
	if sessionID == "" {
		writeError(w, runtime.HTTPStatusFromCode(codes.InvalidArgument), "invalid_request", "session_id is required")
		return
	}

	var body IssueTokensRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, runtime.HTTPStatusFromCode(codes.InvalidArgument), "invalid_request", "malformed request body: "+err.Error())
			return
		}
	}

	kinds, err := host.ParseTokenKinds(body.TokenKinds)
	if err != nil {
		writeError(w, runtime.HTTPStatusFromCode(codes.InvalidArgument), "invalid_request", err.Error())
		return
	}
	kinds = service.RequestedKinds(kinds)

	tokens, err := h.tokens.IssueTokens(r.Context(), &service.IssueRequest{
		SessionID:  sessionID,
		ClientID:   body.ClientID,
		TokenKinds: kinds,
	})
	if err != nil {
		if errors.Is(err, host.ErrSessionNotFound) {
			writeError(w, runtime.HTTPStatusFromCode(codes.NotFound), "session_not_found", err.Error())
			return
		}
		h.logger.Error("token issuance failed", "session_id", sessionID, "error", err)
		writeError(w, runtime.HTTPStatusFromCode(codes.Internal), "server_error", "failed to issue tokens")
		return
	}

	resp := IssueTokensResponse{SessionID: sessionID, Tokens: make([]IssuedToken, 0, len(kinds))}
	for _, kind := range kinds {
		tok, ok := tokens[kind]
		if !ok {
			continue
		}
		issued := IssuedToken{
			Kind:        string(kind),
			Token:       tok.Value,
			ContentType: tok.ContentType,
			IssuedAt:    tok.IssuedAt,
		}
		if !tok.ExpiresAt.IsZero() {
			expiresAt := tok.ExpiresAt
			issued.ExpiresAt = &expiresAt
		}
		resp.Tokens = append(resp.Tokens, issued)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleListMappers serves GET /v1/mappers
func (h *TokenHandler) handleListMappers(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	bindings := h.tokens.Mappers()
	resp := ListMappersResponse{Mappers: make([]MapperInfo, 0, len(bindings))}
	for _, b := range bindings {
		resp.Mappers = append(resp.Mappers, MapperInfo{
			Name:       b.Model.Name,
			Config:     b.Model.Config,
			Descriptor: b.Mapper.Descriptor(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, errorResponse{Error: code, ErrorDescription: description})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
