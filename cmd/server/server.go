package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"webnavigator/config"
	"webnavigator/env"
	"webnavigator/logging"
	"webnavigator/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := config.NewViper()
	var configPath string

	root := &cobra.Command{
		Use:           "navigator",
		Short:         "Serve next action predictions for a collaborative browser",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default navigator.yaml in . or $HOME)")
	root.PersistentFlags().String("log-level", "info", "log level")
	root.PersistentFlags().String("log-format", "console", "log format, console or json")
	mustBind(v, "log.level", root.PersistentFlags().Lookup("log-level"))
	mustBind(v, "log.format", root.PersistentFlags().Lookup("log-format"))

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
	serve.Flags().String("host", "0.0.0.0", "listen host")
	serve.Flags().Int("port", 8080, "listen port")
	serve.Flags().String("ranker", "order", "ranker backend: embedding, inference or order")
	serve.Flags().String("generator", "completion", "generator backend: completion or chat")
	mustBind(v, "server.host", serve.Flags().Lookup("host"))
	mustBind(v, "server.port", serve.Flags().Lookup("port"))
	mustBind(v, "ranker.backend", serve.Flags().Lookup("ranker"))
	mustBind(v, "generator.backend", serve.Flags().Lookup("generator"))

	configCmd := &cobra.Command{Use: "config", Short: "Inspect the configuration"}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	root.AddCommand(serve, configCmd)
	return root
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logging.Setup(&logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	e, err := env.NewEnvironment(cfg, &env.Options{Logger: logger})
	if err != nil {
		return errors.Wrap(err, "build navigator")
	}
	srv := server.New(e.Navigator, &server.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		Gatherer:    e.Registry,
		Logger:      logger,
	})
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	httpServer := srv.HTTPServer(addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)

	errc := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", addr).
			Str("generator", cfg.Generator.Backend).
			Str("ranker", cfg.Ranker.Backend).
			Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return errors.Wrap(err, "serve")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}

	if cfg.Session.DumpDir != "" {
		if err := e.Store.Dump(cfg.Session.DumpDir); err != nil {
			return errors.Wrap(err, "dump sessions")
		}
		logger.Info().Str("dir", cfg.Session.DumpDir).Int("sessions", e.Store.Len()).Msg("dumped sessions")
	}
	return nil
}
