package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	tomb "gopkg.in/tomb.v2"

	"github.com/saiputravu/obm/internal/config"
	"github.com/saiputravu/obm/internal/consumer"
	"github.com/saiputravu/obm/internal/matching"
	"github.com/saiputravu/obm/internal/metrics"
	"github.com/saiputravu/obm/internal/publish"
	"github.com/saiputravu/obm/internal/queue"
	"github.com/saiputravu/obm/internal/recovery"
	"github.com/saiputravu/obm/internal/store"
	"github.com/saiputravu/obm/internal/transport"
	"github.com/saiputravu/obm/internal/wal"
)

func newServeCmd() *cobra.Command {
	var metricsAddr string
	var gatewayAddr string
	var gatewayPort int
	var withGateway bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the command consumer, event publisher, and metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), metricsAddr, gatewayAddr, gatewayPort, withGateway)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9100", "address to serve /metrics on")
	cmd.Flags().StringVar(&gatewayAddr, "gateway-addr", "0.0.0.0", "direct-client TCP gateway bind address")
	cmd.Flags().IntVar(&gatewayPort, "gateway-port", 9001, "direct-client TCP gateway port")
	cmd.Flags().BoolVar(&withGateway, "with-gateway", false, "also run the direct-client TCP gateway alongside the consumer")
	return cmd
}

func runServe(ctx context.Context, metricsAddr, gatewayAddr string, gatewayPort int, withGateway bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	log.Info().Str("wal_path", cfg.WALFilePath).Msg("obm: starting")

	log.Info().Msg("obm: step 1/7 recovering from WAL")
	result, err := recovery.Recover(cfg.WALFilePath)
	if err != nil {
		return err
	}
	log.Info().Int64("last_lsn", result.LastLSN).Int("trades_replayed", len(result.Trades)).Msg("obm: recovery complete")

	log.Info().Msg("obm: step 2/7 opening WAL")
	w, err := wal.Open(cfg.WALFilePath)
	if err != nil {
		return err
	}
	log.Info().Int64("next_lsn", w.NextLSN()).Msg("obm: WAL opened")

	engine := matching.New(result.Book, nil)

	log.Info().Msg("obm: step 3/7 connecting to redis")
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	log.Info().Str("addr", cfg.RedisAddr).Msg("obm: redis client ready")

	log.Info().Msg("obm: step 4/7 connecting to relational store")
	// Query-side store is best-effort: the original service keeps serving
	// orders even if the relational store is unavailable at boot.
	st, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Warn().Err(err).Msg("obm: relational store unavailable, continuing without query-side persistence")
		st = nil
	} else {
		log.Info().Msg("obm: relational store connected")
	}

	log.Info().Msg("obm: step 5/7 starting event publisher")
	publisher := publish.New(redisClient, result.Book, cfg.TradeChannel, cfg.SnapshotChannel, cfg.SnapshotInterval, cfg.SnapshotDepth)

	log.Info().Msg("obm: step 6/7 connecting command queue")
	q := queue.New(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("obm: command queue ready")

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	cons := consumer.New(result.Book, engine, w, publisher, st, q, m)

	log.Info().Msg("obm: step 7/7 starting background tasks")
	t, tCtx := tomb.WithContext(ctx)

	t.Go(func() error { return cons.Run(t) })
	t.Go(func() error { return publisher.RunSnapshotPump(t) })

	if withGateway {
		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		gw := transport.New(gatewayAddr, gatewayPort, producer)
		t.Go(func() error { return gw.Run(t) })
	}

	metricsSrv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}
	t.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	t.Go(func() error {
		<-t.Dying()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	log.Info().Msg("obm: ready")

	<-tCtx.Done()
	t.Kill(nil)
	waitErr := t.Wait()

	// Consumer and snapshot publisher have already stopped by the time
	// t.Wait returns; they both select on t.Dying(). WAL closes first
	// since it is the system of record, matching the original service.
	log.Info().Msg("obm: shutdown: closing WAL")
	if err := w.Close(); err != nil {
		log.Error().Err(err).Msg("obm: wal close failed")
	}

	log.Info().Msg("obm: shutdown: disconnecting store")
	st.Close()

	log.Info().Msg("obm: shutdown: closing redis client")
	if err := redisClient.Close(); err != nil {
		log.Error().Err(err).Msg("obm: redis close failed")
	}

	log.Info().Msg("obm: shutdown: closing command queue")
	if err := q.Close(); err != nil {
		log.Error().Err(err).Msg("obm: queue close failed")
	}

	if waitErr != nil {
		log.Error().Err(waitErr).Msg("obm: shut down with error")
		return waitErr
	}
	log.Info().Msg("obm: shut down cleanly")
	return nil
}
