package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/project-kessel/rolemapper/internal/config"
	"github.com/project-kessel/rolemapper/internal/server"
	"github.com/project-kessel/rolemapper/internal/service"
)

const testRealm = "../../internal/store/testdata/realm.yaml"

// testEnv bundles a running server, gRPC health client, and the issuer URL
// its tokens carry
type testEnv struct {
	Ctx          context.Context
	Srv          *server.Server
	Provider     *config.Provider
	HealthClient healthpb.HealthClient
	HTTPPort     int
	IssuerURL    string

	// RealmPath is a private copy of the test realm the server loaded
	RealmPath string
}

// startTestEnv builds every component from config the way serve does, starts
// a server on the given ports, waits for it, dials a gRPC health client, and
// registers cleanup via t.Cleanup. The server is left NOT_SERVING.
func startTestEnv(t *testing.T, grpcPort, httpPort int) *testEnv {
	t.Helper()

	realm, err := os.ReadFile(testRealm)
	if err != nil {
		t.Fatalf("Failed to read test realm: %v", err)
	}
	realmPath := filepath.Join(t.TempDir(), "realm.yaml")
	if err := os.WriteFile(realmPath, realm, 0o600); err != nil {
		t.Fatalf("Failed to copy test realm: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	issuerURL := fmt.Sprintf("http://localhost:%d", httpPort)

	provider := config.NewProvider(&config.Config{
		Realm: realmPath,
		Issuer: config.IssuerConfig{
			URL:     issuerURL,
			TTL:     "5m",
			KeyType: "EC-P256",
		},
		AttributeSource: config.AttributeSourceConfig{Type: "realm"},
	})
	provider.SetObserver(service.NoOpObserver())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tokenService, err := provider.TokenService()
	if err != nil {
		cancel()
		t.Fatalf("Failed to build token service: %v", err)
	}
	issuerRegistry, err := provider.IssuerRegistry()
	if err != nil {
		cancel()
		t.Fatalf("Failed to build issuer registry: %v", err)
	}

	srv := server.New(server.Config{
		GRPCPort:     grpcPort,
		HTTPPort:     httpPort,
		TokenHandler: server.NewTokenHandler(tokenService, logger),
		JWKSServer:   server.NewJWKSServer(server.JWKSServerConfig{IssuerRegistry: issuerRegistry, Logger: logger}),
	})

	if err := srv.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Failed to start server on :%d/:%d: %v", grpcPort, httpPort, err)
	}

	waitForServer(t, httpPort, 5*time.Second)

	grpcConn, err := grpc.NewClient(
		fmt.Sprintf("localhost:%d", grpcPort),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		cancel()
		t.Fatalf("Failed to dial gRPC on :%d: %v", grpcPort, err)
	}

	t.Cleanup(func() {
		_ = grpcConn.Close()
		_ = srv.Stop(ctx)
		cancel()
	})

	return &testEnv{
		Ctx:          ctx,
		Srv:          srv,
		Provider:     provider,
		HealthClient: healthpb.NewHealthClient(grpcConn),
		HTTPPort:     httpPort,
		IssuerURL:    issuerURL,
		RealmPath:    realmPath,
	}
}

// waitForServer polls the given port until a TCP connection succeeds or timeout is reached.
func waitForServer(t *testing.T, port int, timeout time.Duration) {
	t.Helper()

	addr := fmt.Sprintf("localhost:%d", port)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("server on port %d did not become ready within %v", port, timeout)
}
