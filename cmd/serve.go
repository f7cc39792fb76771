package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"thermal-eye/config"
	"thermal-eye/internal/api"
	"thermal-eye/internal/container"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP-сервер анализа",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			c, err := container.New(cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			server := api.NewServer(api.ServerParams{
				Service:        c.AnalysisService,
				Repository:     c.Repository,
				APIToken:       cfg.APIToken,
				DefaultAmbient: cfg.Analysis.DefaultAmbient,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Printf("Listening on %s", cfg.HTTPAddr)
				errCh <- server.Start(cfg.HTTPAddr)
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}
