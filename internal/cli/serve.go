package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kilupskalvis/dcbranch/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the branching session over HTTP",
	Long: `Run an HTTP JSON API over the repository's branching session. Every
mutation is saved to the session store, so the CLI and the server see the
same branches. Run only one writer (server or CLI) at a time.

Environment:
  DCB_LISTEN        listen address (default 127.0.0.1:8730)
  DCB_TOKEN         bearer token required on /api routes
  DCB_WEBHOOK_URLS  comma-separated URLs notified after each merge`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

var (
	serveListen   string
	serveToken    string
	serveWebhooks string
	serveSecret   string
)

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", envOrDefault("DCB_LISTEN", "127.0.0.1:8730"), "Listen address")
	serveCmd.Flags().StringVar(&serveToken, "token", os.Getenv("DCB_TOKEN"), "Bearer token for API requests")
	serveCmd.Flags().StringVar(&serveWebhooks, "webhook-urls", os.Getenv("DCB_WEBHOOK_URLS"), "Comma-separated webhook URLs to notify on merge")
	serveCmd.Flags().StringVar(&serveSecret, "webhook-secret", os.Getenv("DCB_WEBHOOK_SECRET"), "Secret for signing webhook payloads")
}

func runServe(cmd *cobra.Command, args []string) {
	c := initContext(context.Background())
	defer c.Close()
	logger := c.Logger

	cfg := server.DefaultConfig()
	cfg.Token = serveToken

	if serveWebhooks != "" {
		var urls []string
		for _, u := range strings.Split(serveWebhooks, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		cfg.Webhooks = server.NewWebhookNotifier(urls, serveSecret, logger)
		logger.Info("webhooks configured", "count", len(urls), "signed", serveSecret != "")
	}
	if cfg.Token == "" {
		logger.Warn("no API token configured; requests are not authenticated")
	}

	h, cleanup := server.Handler(c.Service, c.Session.SaveState, cfg, logger)
	defer cleanup()

	srv := &http.Server{
		Addr:         serveListen,
		Handler:      h,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return context.Background() },
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting dcb server", "listen", serveListen, "active", c.Service.ActiveBranch().Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-done:
	case err := <-errCh:
		logger.Error("server error", "error", err)
		c.Close()
		exitError("%v", err)
	}
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	c.Save()
	logger.Info("server stopped")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
