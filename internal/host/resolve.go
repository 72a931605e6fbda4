package host

import (
	"context"
	"errors"
	"fmt"
)

// ErrClientUnresolved is returned when no fallback step produced a client
var ErrClientUnresolved = errors.New("could not determine client for user session")

// ClientSource records which fallback step produced the client
type ClientSource string

const (
	ClientFromSessionContext ClientSource = "client_session_context"
	ClientFromIssuedFor      ClientSource = "issued_for"
	ClientFromUserSession    ClientSource = "user_session"
)

// ResolveClient determines whose client roles go into the token.
//
// Order: the client of the current client session context, then the client
// named by the token's issued-for identifier, then any client the user session
// is authenticated with. The last step picks whichever entry map iteration
// yields first, so it is nondeterministic when the session spans several clients.
func ResolveClient(
	ctx context.Context,
	lookup ClientLookup,
	token TokenSink,
	userSession *UserSession,
	clientSessionCtx *ClientSessionContext,
) (*Client, ClientSource, error) {
	if clientSessionCtx != nil && clientSessionCtx.ClientSession != nil && clientSessionCtx.ClientSession.Client != nil {
		return clientSessionCtx.ClientSession.Client, ClientFromSessionContext, nil
	}

	if token != nil && lookup != nil && userSession != nil {
		if clientID := token.IssuedFor(); clientID != "" {
			client, err := lookup.ClientByClientID(ctx, userSession.Realm, clientID)
			switch {
			case err == nil && client != nil:
				return client, ClientFromIssuedFor, nil
			case err != nil && !errors.Is(err, ErrClientNotFound):
				return nil, "", fmt.Errorf("failed to look up client %s: %w", clientID, err)
			}
		}
	}

	if userSession != nil {
		for _, cs := range userSession.AuthenticatedClientSessions {
			if cs != nil && cs.Client != nil {
				return cs.Client, ClientFromUserSession, nil
			}
		}
	}

	return nil, "", ErrClientUnresolved
}
