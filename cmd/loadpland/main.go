package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/awaistahir/loadplan/internal/config"
	"github.com/awaistahir/loadplan/internal/httpapi"
	"github.com/awaistahir/loadplan/internal/logging"
	"github.com/awaistahir/loadplan/internal/metrics"
	"github.com/awaistahir/loadplan/internal/mqtt"
	"github.com/awaistahir/loadplan/internal/planner"
	"github.com/awaistahir/loadplan/internal/store"
)

func main() {
	var cfgFile string
	var addr string

	rootCmd := &cobra.Command{
		Use:   "loadpland",
		Short: "LoadPlan scheduling server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			log := logging.New("loadpland", cfg.Log.Level, cfg.Log.Pretty)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := store.NewStore(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer st.Close()

			registry := prometheus.NewRegistry()
			recorder, err := metrics.NewRecorderWithRegistry(registry)
			if err != nil {
				return fmt.Errorf("registering metrics: %w", err)
			}

			var publisher planner.Publisher
			if cfg.MQTT.Enabled {
				pub, err := mqtt.NewPublisher(mqtt.Config{
					Broker:      cfg.MQTT.Broker,
					ClientID:    cfg.MQTT.ClientID,
					Username:    cfg.MQTT.Username,
					Password:    cfg.MQTT.Password,
					TopicPrefix: cfg.MQTT.TopicPrefix,
					QoS:         byte(cfg.MQTT.QoS),
				}, log)
				if err != nil {
					return fmt.Errorf("connecting to mqtt: %w", err)
				}
				defer pub.Disconnect()
				publisher = pub
			}

			pl := planner.New(st, planner.Options{
				Horizon:   cfg.Horizon,
				MaxLoadKW: cfg.MaxLoadKW,
				Recorder:  recorder,
				Publisher: publisher,
				Logger:    &log,
			})

			api := httpapi.NewServer(st, pl, httpapi.Options{
				Horizon: cfg.Horizon,
				Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
				Logger:  &log,
			})

			srv := &http.Server{
				Addr:              cfg.HTTP.Addr,
				Handler:           api.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			log.Info().
				Str("addr", cfg.HTTP.Addr).
				Str("db", cfg.DBPath).
				Int("horizon", cfg.Horizon).
				Bool("mqtt", cfg.MQTT.Enabled).
				Msg("loadpland listening")

			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			log.Info().Msg("loadpland stopped")
			return nil
		},
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.loadplan/config.yaml)")
	rootCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
