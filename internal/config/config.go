package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	API struct {
		Port        int `env:"PORT" envDefault:"3001"`
		MetricsPort int `env:"METRICS_PORT" envDefault:"9010"`
	}
	App struct {
		LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`
		// Origin is the public origin of the storefront, used to absolutize
		// redirect URLs embedded into gateway invoices.
		Origin    string `env:"APP_ORIGIN" envDefault:"http://localhost:3000"`
		SentryDSN string `env:"SENTRY_DSN"`
	}
	Gateway struct {
		BaseURL string `env:"ROCKET_PAY_API_URL" envDefault:"https://pay.xrocket.tg/api"`
		APIKey  string `env:"ROCKET_PAY_SECRET_KEY"`
	}
	Rates struct {
		SourceURL    string  `env:"TON_PRICE_API_URL" envDefault:"https://api.coingecko.com/api/v3/simple/price?ids=the-open-network&vs_currencies=rub"`
		FallbackRate float64 `env:"TON_RUB_FALLBACK_RATE" envDefault:"350"`
		// CacheTTL of 0 keeps the rate fetched on every conversion.
		CacheTTL time.Duration `env:"RATE_CACHE_TTL" envDefault:"0"`
	}
}

func Load() Config {
	var c Config
	if err := env.Parse(&c); err != nil {
		log.Panicf("[‼️  Config parsing failed] %+v\n", err)
	}
	return c
}
