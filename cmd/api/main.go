package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MRCriper/tg-bot123/internal/config"
	"github.com/MRCriper/tg-bot123/pkg/app"
	"github.com/MRCriper/tg-bot123/pkg/payment"
	"github.com/MRCriper/tg-bot123/pkg/proxy"
	"github.com/MRCriper/tg-bot123/pkg/rates"
	"github.com/MRCriper/tg-bot123/pkg/sentry"
	"github.com/MRCriper/tg-bot123/pkg/xrocket"
)

func main() {
	cfg := config.Load()
	log := app.Logger(cfg.App.LogLevel)
	sentry.Setup(cfg.App.SentryDSN)

	converter := rates.NewConverter(log, cfg.Rates.SourceURL, cfg.Rates.FallbackRate, cfg.Rates.CacheTTL)
	client := xrocket.NewClient(log, converter, cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.App.Origin)
	orchestrator := payment.NewOrchestrator(log, client, cfg.App.Origin)

	h := proxy.NewHandler(log, cfg.Gateway.BaseURL, cfg.Gateway.APIKey, orchestrator, client)

	go func() {
		metrics := http.Server{
			Addr:    fmt.Sprintf(":%v", cfg.API.MetricsPort),
			Handler: promhttp.Handler(),
		}
		if err := metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics listen and serve", zap.Error(err))
		}
	}()

	app.Serve(log, &http.Server{
		Addr:    fmt.Sprintf(":%v", cfg.API.Port),
		Handler: h.Router(),
	})
}
