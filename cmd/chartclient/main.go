// chartclient is a headless stand-in for the hosting chart: it drives an
// overlay session the way a UI would — bar closes, observation point
// changes, and snapshot reads — without any rendering.
package main

import (
	"log"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"chartlinkv1/config"
	"chartlinkv1/internal/link"
	"chartlinkv1/internal/logger"
	"chartlinkv1/internal/metrics"
	"chartlinkv1/internal/model"
	"chartlinkv1/internal/overlay"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Init("chartclient", slog.LevelInfo)

	cfg := config.Load()

	reqEP, err := link.NewEndpoint(cfg.RequestHost, cfg.RequestPort)
	if err != nil {
		log.Fatalf("[chartclient] %v", err)
	}
	pushEP, err := link.NewEndpoint(cfg.PushHost, cfg.PushPort)
	if err != nil {
		log.Fatalf("[chartclient] %v", err)
	}
	replyEP, err := link.NewEndpoint(cfg.ReplyHost, cfg.ReplyPort)
	if err != nil {
		log.Fatalf("[chartclient] %v", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	registry := overlay.NewRegistry()
	session := overlay.NewSession(overlay.SessionConfig{
		RequestEndpoint: reqEP,
		PushEndpoint:    pushEP,
		ReplyEndpoint:   replyEP,
		Symbol:          cfg.Symbol,
		Resolution:      model.Resolution(cfg.Resolution),
		PeriodCount:     cfg.PeriodCount,
		SeriesKind:      cfg.SeriesKind,
		TOTPSecret:      cfg.LinkTOTPSecret,
		Metrics:         m,
		Health:          health,
		OnRedraw: func() {
			slog.Info("redraw requested")
		},
	})
	if err := session.Init(); err != nil {
		log.Fatalf("[chartclient] session init failed: %v", err)
	}

	sessionKey := cfg.Symbol + ":" + cfg.Resolution + ":" + strconv.Itoa(cfg.PeriodCount)
	if err := registry.Add(sessionKey, session); err != nil {
		log.Fatalf("[chartclient] %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Simulated chart activity: a random-walk bar close every 2s and an
	// observation-point change following the live edge.
	barTicker := time.NewTicker(2 * time.Second)
	defer barTicker.Stop()
	price := 100.0

	for {
		select {
		case <-sigCh:
			log.Printf("[chartclient] shutting down")
			registry.ShutdownAll()
			return

		case now := <-barTicker.C:
			delta := (rand.Float64() - 0.5) * 2
			bar := model.Bar{
				Symbol:      cfg.Symbol,
				Resolution:  model.Resolution(cfg.Resolution),
				PeriodCount: cfg.PeriodCount,
				CloseTime:   now.UTC(),
				Open:        price,
				High:        price + rand.Float64(),
				Low:         price - rand.Float64(),
				Close:       price + delta,
				Volume:      float64(rand.Intn(1000)),
			}
			price += delta

			session.OnBarClose(bar)
			session.OnObservationChange("live:"+now.UTC().Format(time.RFC3339), now.UTC())

			elements := session.Snapshot()
			slog.Info("chart state",
				slog.String("lifecycle", session.State().String()),
				slog.Int("overlay_elements", len(elements)),
				slog.Int("history_bars", session.History().Len()),
			)
		}
	}
}
