// Package server wires the evidence pipeline together and runs the HTTP API
// and the gRPC health endpoint until the process is signalled.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/config"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/contentstore"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/ledger"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/services"

	gs "github.com/dmitrijs2005/evidencekeeper/internal/server/grpc"
)

type App struct {
	config       *config.Config
	logger       logging.Logger
	repos        repomanager.RepositoryManager
	pinata       *contentstore.PinataStore
	coordinator  *ledger.Coordinator
	closeLedgers func()
	handler      *httpapi.Handler
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	repos, err := repomanager.Open(ctx, c.DatabaseDSN, c.RecordsFile, logger)
	if err != nil {
		return nil, fmt.Errorf("record index init error: %w", err)
	}

	pinata := contentstore.NewPinataStore(c.PinataAPIURL, c.PinataJWT, &http.Client{}, logger)
	if !pinata.Configured() {
		logger.Warn(ctx, "PINATA_JWT not set, uploads will fail until it is configured")
	}

	gwClient := &http.Client{}
	gateways := make([]contentstore.Gateway, 0, len(c.Gateways)+1)
	for _, g := range c.Gateways {
		gateways = append(gateways, contentstore.NewHTTPGateway(g, gwClient, c.MaxUploadSize))
	}
	resolveBase := ""
	if len(c.Gateways) > 0 {
		resolveBase = c.Gateways[0]
	}

	// the mirror is tried after the public gateways and gets its own attempt
	attempts := c.MaxGatewayAttempts
	var mirror services.Mirror
	if c.MirrorEnabled() {
		m, err := contentstore.NewS3Mirror(ctx, contentstore.S3Config{
			User:         c.S3User,
			Password:     c.S3Password,
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			Prefix:       c.S3Prefix,
		})
		if err != nil {
			logger.Error(ctx, "S3 mirror disabled", "error", err)
		} else {
			mirror = m
			gateways = append(gateways, m)
			attempts++
			logger.Info(ctx, "S3 mirror enabled", "target", m.Name())
		}
	}

	store := contentstore.NewStore(pinata, gateways, contentstore.Options{
		ResolveBase:    resolveBase,
		MaxAttempts:    attempts,
		AttemptTimeout: c.GatewayTimeout,
	}, logger)

	settings := make([]ledger.Settings, 0, len(c.Ledgers))
	for _, l := range c.Ledgers {
		settings = append(settings, ledger.Settings{
			Name:            l.Name,
			RPCURL:          l.RPCURL,
			ContractAddress: l.ContractAddress,
			ExplorerURL:     l.ExplorerURL,
			ChainID:         l.ChainID,
			SigningKey:      c.SigningKey,
			Confirmations:   c.Confirmations,
		})
	}
	slots, closeLedgers := ledger.Open(ctx, settings, logger)
	coordinator := ledger.NewCoordinator(slots, c.LedgerTimeout, logger)
	if coordinator.Configured() == 0 {
		logger.Warn(ctx, "no ledger configured, uploads are anchored in mock mode")
	}

	evidence := services.NewEvidenceService(store, coordinator, repos.Records(), mirror, c.LedgerTimeout, logger)

	handler, err := httpapi.NewHandler(evidence, coordinator, httpapi.Options{
		UploadsDir:      c.UploadsDir,
		DeleteTempFiles: c.DeleteTempFiles,
		MaxUploadSize:   c.MaxUploadSize,
	}, logger)
	if err != nil {
		closeLedgers()
		_ = repos.Close()
		return nil, err
	}

	return &App{
		config:       c,
		logger:       logger,
		repos:        repos,
		pinata:       pinata,
		coordinator:  coordinator,
		closeLedgers: closeLedgers,
		handler:      handler,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.EndpointAddrHTTP, httpapi.NewRouter(app.handler), app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.coordinator, app.pinata)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a signal arrives, ctx is cancelled or a server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "index", app.repos.Backend(), "ledgers", app.coordinator.Statuses())

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.closeLedgers()
	if err := app.repos.Close(); err != nil {
		app.logger.Error(ctx, "close record index", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
