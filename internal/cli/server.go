package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"nikkei-quiz-service/internal/app"
	"nikkei-quiz-service/internal/auth"
	"nikkei-quiz-service/internal/config"
	transport "nikkei-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	sys, err := buildSystem(ctx, cfg)
	if err != nil {
		return err
	}
	defer sys.Close()

	service := app.NewQuizService(sys.questions, sys.pending, sys.stats, app.Options{
		RejectResubmit: cfg.Quiz.RejectResubmit,
		Events:         sys.events,
	})
	tokens := auth.NewTokens(jwtSecret(cfg), config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
	accounts := auth.NewService(sys.stats, tokens)

	server := &http.Server{
		Addr: ":" + finalPort,
		Handler: transport.NewRouter(service, accounts, transport.RouterOptions{
			AnonymousStats: cfg.AnonymousStatsEnabled(),
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("[STARTUP] nikkei quiz service on :%s (backend %s)", finalPort, cfg.Storage.Backend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[STARTUP] failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
