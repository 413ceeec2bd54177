package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfarouk/repochat/internal/batch"
	"github.com/mfarouk/repochat/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Starts the HTTP API: repository registration and indexing, chat over REST and WebSocket, status and Prometheus metrics.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "listen host (overrides config)")
	serveCmd.Flags().Int("port", 0, "listen port (overrides config)")
	serveCmd.Flags().Bool("allow-all-origins", false, "allow all CORS origins (dev mode)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := buildApp(ctx, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	host, _ := cmd.Flags().GetString("host")
	if host == "" {
		host = a.cfg.Server.Host
	}
	port, _ := cmd.Flags().GetInt("port")
	if port == 0 {
		port = a.cfg.Server.Port
	}
	allowAll, _ := cmd.Flags().GetBool("allow-all-origins")

	srv := server.New(server.Config{
		Host:     host,
		Port:     port,
		AllowAll: allowAll,
	}, server.Deps{
		Repos:     a.repos,
		Sessions:  a.sessions,
		Store:     a.store,
		Chat:      a.chat,
		Pipeline:  a.pipeline,
		Workspace: a.workspace,
		Trackers: map[string]*batch.StatusTracker{
			"summarize": a.summarizer.Tracker(),
			"embed":     a.embedSvc.Tracker(),
		},
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-stop:
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
