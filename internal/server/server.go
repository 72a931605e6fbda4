package server

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Health service names reported by the gRPC health server
const (
	TokenServiceName = "rolemapper.v1.TokenService"
	JWKSServiceName  = "rolemapper.v1.JWKSService"
)

// healthServices are checked in order by the readiness probe
var healthServices = []string{TokenServiceName, JWKSServiceName}

// Server manages the gRPC and HTTP servers
type Server struct {
	grpcServer   *grpc.Server
	httpServer   *http.Server
	healthServer *health.Server

	grpcPort int
	httpPort int

	tokenHandler *TokenHandler
	jwksServer   *JWKSServer
}

// Config contains server configuration
type Config struct {
	GRPCPort int
	HTTPPort int

	TokenHandler *TokenHandler
	JWKSServer   *JWKSServer
}

// New creates a new server with the given configuration
func New(cfg Config) *Server {
	hs := health.NewServer()
	for _, svc := range healthServices {
		hs.SetServingStatus(svc, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return &Server{
		healthServer: hs,
		grpcPort:     cfg.GRPCPort,
		httpPort:     cfg.HTTPPort,
		tokenHandler: cfg.TokenHandler,
		jwksServer:   cfg.JWKSServer,
	}
}

type route struct {
	method  string
	pattern string
	handler runtime.HandlerFunc
}

// Handler returns the HTTP routes
func (s *Server) Handler() (http.Handler, error) {
	mux := runtime.NewServeMux()

	routes := []route{
		{http.MethodGet, "/healthz/live", wrap(s.handleLiveness)},
		{http.MethodGet, "/healthz/ready", wrap(s.handleReadiness)},
	}
	if s.tokenHandler != nil {
		routes = append(routes,
			route{http.MethodPost, "/v1/sessions/{session_id}/tokens", s.tokenHandler.handleIssueTokens},
			route{http.MethodGet, "/v1/mappers", s.tokenHandler.handleListMappers},
		)
	}
	if s.jwksServer != nil {
		routes = append(routes,
			route{http.MethodGet, "/v1/jwks.json", s.jwksServer.handleJWKS},
			route{http.MethodGet, "/.well-known/jwks.json", s.jwksServer.handleJWKS},
		)
	}

	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return nil, fmt.Errorf("failed to register %s %s: %w", r.method, r.pattern, err)
		}
	}
	return mux, nil
}

// Start starts both the gRPC and HTTP servers
func (s *Server) Start(ctx context.Context) error {
	// Create gRPC server
	s.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.healthServer)

	// Register reflection service for grpcurl and other tools
	reflection.Register(s.grpcServer)

	// Start gRPC server
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.grpcPort))
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port %d: %w", s.grpcPort, err)
	}

	go func() {
		fmt.Printf("gRPC server listening on :%d\n", s.grpcPort)
		if err := s.grpcServer.Serve(grpcListener); err != nil {
			fmt.Printf("gRPC server error: %v\n", err)
		}
	}()

	handler, err := s.Handler()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.httpPort),
		Handler: handler,
	}

	go func() {
		fmt.Printf("HTTP server listening on :%d\n", s.httpPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("HTTP server error: %v\n", err)
		}
	}()

	return nil
}

// SetReady marks every service SERVING
func (s *Server) SetReady() {
	for _, svc := range healthServices {
		s.healthServer.SetServingStatus(svc, healthpb.HealthCheckResponse_SERVING)
	}
}

// SetNotReady marks every service NOT_SERVING, e.g. while draining
func (s *Server) SetNotReady() {
	for _, svc := range healthServices {
		s.healthServer.SetServingStatus(svc, healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// Stop gracefully stops both servers
func (s *Server) Stop(ctx context.Context) error {
	s.healthServer.Shutdown()

	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleLiveness reports that the process is up
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// handleReadiness reports the first service that is not SERVING, if any
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	for _, svc := range healthServices {
		resp, err := s.healthServer.Check(r.Context(), &healthpb.HealthCheckRequest{Service: svc})
		if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  healthpb.HealthCheckResponse_NOT_SERVING.String(),
				"service": svc,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": healthpb.HealthCheckResponse_SERVING.String()})
}

func wrap(h http.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		h(w, r)
	}
}
