package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/m-mizutani/truthcast/pkg/server"
	"github.com/m-mizutani/truthcast/pkg/utils/logging"
)

func serveCommand() *cli.Command {
	var (
		cfg  config
		addr string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       "127.0.0.1:8080",
			Sources:     cli.EnvVars("TRUTHCAST_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, coreFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP server",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx, c)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sv, err := cfg.newServices(ctx)
			if err != nil {
				return err
			}
			defer sv.repo.Close()

			handler := server.New(sv.chat, sv.repo,
				server.WithStreamBuffer(int(cfg.streamBuffer)),
				server.WithContent(sv.content),
			).Handler()
			httpServer := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					logging.From(ctx).Error("failed to shut down server", "error", err)
				}
			}()

			logging.From(ctx).Info("starting server", "addr", addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return goerr.Wrap(err, "server failed")
			}
			return nil
		},
	}
}
