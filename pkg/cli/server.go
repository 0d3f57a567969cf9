package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mchmarny/tally/pkg/config"
	"github.com/mchmarny/tally/pkg/data"
	"github.com/urfave/cli/v3"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20
	serverPortDefault         = 8080

	flagPort = "port"
	flagHost = "host"
)

func newServerCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"serve"},
		Usage:   "Start local HTTP API server",
		Action:  cmdStartServer,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  flagPort,
				Usage: "Port on which the server will listen",
				Value: serverPortDefault,
			},
			&cli.StringFlag{
				Name:  flagHost,
				Usage: "Address on which the server will listen",
				Value: "127.0.0.1",
			},
		},
	}
}

func cmdStartServer(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)
	address := fmt.Sprintf("%s:%d", cmd.String(flagHost), cmd.Int(flagPort))

	s := &http.Server{
		Addr:           address,
		Handler:        makeRouter(cfg.DB, cfg.Config.Bounds),
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("server started", "address", fmt.Sprintf("http://%s", address))

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("error starting server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	return nil
}

func makeRouter(db *data.DB, bounds config.Bounds) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /data/keys", keysAPIHandler(db))
	mux.HandleFunc("GET /data/state", stateAPIHandler(db))
	mux.HandleFunc("GET /data/stats", statsAPIHandler(db))
	mux.HandleFunc("GET /data/rank", rankAPIHandler(db, bounds))
	mux.HandleFunc("GET /data/export", exportAPIHandler(db))
	mux.HandleFunc("POST /data/merge", mergeAPIHandler(db))

	return mux
}
