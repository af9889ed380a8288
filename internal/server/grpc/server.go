// Package grpc exposes the standard gRPC health service with one entry per
// ledger and one for the content store, so orchestrators can probe
// readiness without going through the REST API.
package grpc

import (
	"context"
	"net"
	"sort"

	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/ledger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	ledgerServicePrefix = "evidence.ledger."
	ContentStoreService = "evidence.contentstore"
)

// LedgerStatuses reports per-ledger configuration state by name.
type LedgerStatuses interface {
	Statuses() map[string]string
}

// CredentialChecker reports whether the content store has credentials.
type CredentialChecker interface {
	Configured() bool
}

type GRPCServer struct {
	address string
	ledgers LedgerStatuses
	store   CredentialChecker
	health  *health.Server
	logger  logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, ledgers LedgerStatuses, store CredentialChecker) *GRPCServer {
	return &GRPCServer{
		address: a,
		ledgers: ledgers,
		store:   store,
		health:  health.NewServer(),
		logger:  l.With("module", "grpc_server"),
	}
}

// LedgerService is the health service name reported for a ledger.
func LedgerService(name string) string {
	return ledgerServicePrefix + name
}

// refresh publishes current statuses. The overall ("") service is SERVING
// as long as the process is up; individual entries carry the detail.
func (s *GRPCServer) refresh(ctx context.Context) {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	statuses := s.ledgers.Statuses()
	names := make([]string, 0, len(statuses))
	for name := range statuses {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if statuses[name] == ledger.StatusConfigured {
			st = healthpb.HealthCheckResponse_SERVING
		}
		s.health.SetServingStatus(LedgerService(name), st)
		s.logger.Debug(ctx, "health status set", "service", LedgerService(name), "status", st.String())
	}

	st := healthpb.HealthCheckResponse_NOT_SERVING
	if s.store.Configured() {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ContentStoreService, st)
}

// Serve runs on an existing listener until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))

	s.refresh(ctx)
	healthpb.RegisterHealthServer(srv, s.health)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

func (s *GRPCServer) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}
