package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-kessel/rolemapper/internal/host"
	"github.com/project-kessel/rolemapper/internal/roleattr"
)

func newJSONLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func TestLoggingObserver_Mapping(t *testing.T) {
	var buf bytes.Buffer
	obs := NewLoggingObserver(newJSONLogger(&buf))

	session := &host.UserSession{ID: "session-42"}
	_, probe := obs.MappingStarted(context.Background(), "oidc-client-role-attributes-mapper", host.TokenKindAccess, session)

	probe.ClientUnresolved(errors.New("no client"))
	probe.RoleSkipped(roleattr.Role{Name: "admin"}, errors.New("timeout"))
	probe.MappingFailed(errors.New("boom"))
	probe.End()

	recs := records(t, &buf)
	require.Len(t, recs, 3)

	assert.Equal(t, "WARN", recs[0]["level"])
	assert.Equal(t, "Could not determine client for user session", recs[0]["msg"])
	assert.Equal(t, "session-42", recs[0]["session_id"])
	assert.Equal(t, RoleAttributesMappingEvent, recs[0]["event"])

	assert.Equal(t, "WARN", recs[1]["level"])
	assert.Equal(t, "admin", recs[1]["role"])
	assert.Equal(t, "timeout", recs[1]["error"])

	assert.Equal(t, "ERROR", recs[2]["level"])
	assert.Equal(t, "Error processing role attributes for user session", recs[2]["msg"])
	assert.Equal(t, "session-42", recs[2]["session_id"])
	assert.Equal(t, "access", recs[2]["token_kind"])
}

func TestLoggingObserver_TokenIssuance(t *testing.T) {
	var buf bytes.Buffer
	obs := NewLoggingObserver(newJSONLogger(&buf))

	_, probe := obs.TokenIssuanceStarted(context.Background(), "s-1", "portal", []host.TokenKind{host.TokenKindID})
	probe.TokenKindIssuanceStarted(host.TokenKindID)
	probe.TokenKindIssuanceFailed(host.TokenKindID, errors.New("signing failed"))
	probe.End()

	recs := records(t, &buf)
	require.Len(t, recs, 4)
	for _, rec := range recs {
		assert.Equal(t, TokenIssuanceEvent, rec["event"])
	}
	assert.Equal(t, "ERROR", recs[2]["level"])
	assert.Equal(t, "id", recs[2]["token_kind"])
	assert.Equal(t, "signing failed", recs[2]["error"])
}

func TestLoggingObserver_DefaultLogger(t *testing.T) {
	obs := NewLoggingObserverWithConfig(LoggingObserverConfig{})
	_, probe := obs.MappingStarted(context.Background(), "m", host.TokenKindUserInfo, nil)
	assert.NotPanics(t, func() {
		probe.ClaimOmitted("role_attributes")
		probe.End()
	})
}
