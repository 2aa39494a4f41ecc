package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cache "github.com/Code-Hex/go-generics-cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Name of the service used for price calculation
const coinGecko string = "CoinGecko"

// tonDecimals sets the maximum precision of a TON amount
const tonDecimals = 9

const cacheKey = "TON/RUB"

// Source represents a market data endpoint together with the converter for
// its response format.
type Source struct {
	Name string
	URL  string
	// Converter for calculating the TON fiat price
	RateConverter func(closer io.ReadCloser) (float64, error)
}

// Converter turns storefront fiat amounts into TON using a live market rate.
// The source being unavailable never blocks a conversion: a fixed fallback
// rate substitutes for the live one.
type Converter struct {
	logger   *zap.Logger
	client   *http.Client
	source   Source
	fallback float64
	cacheTTL time.Duration
	cache    *cache.Cache[string, float64]
}

func NewConverter(logger *zap.Logger, sourceURL string, fallbackRate float64, cacheTTL time.Duration) *Converter {
	c := &Converter{
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
		source: Source{
			Name:          coinGecko,
			URL:           sourceURL,
			RateConverter: convertedCoinGeckoResponse,
		},
		fallback: fallbackRate,
	}
	if cacheTTL > 0 {
		c.cacheTTL = cacheTTL
		c.cache = cache.New[string, float64]()
	}
	return c
}

// Rate returns how many rubles one TON is worth. A failing source is not an
// error: a possibly-stale estimate is preferred over blocking the payment
// flow, so the fallback rate is returned instead.
func (c *Converter) Rate(ctx context.Context) float64 {
	if c.cache != nil {
		if rate, ok := c.cache.Get(cacheKey); ok {
			return rate
		}
	}
	respBody, err := c.sendRequest(ctx, c.source.URL)
	if err != nil {
		c.logger.Warn("failed to fetch TON rate, using fallback",
			zap.String("source", c.source.Name), zap.Error(err))
		errorsCounter.WithLabelValues(c.source.Name).Inc()
		return c.fallback
	}
	rate, err := c.source.RateConverter(respBody)
	if err != nil || rate == 0 {
		c.logger.Warn("failed to convert TON rate response, using fallback",
			zap.String("source", c.source.Name), zap.Error(err))
		errorsCounter.WithLabelValues(c.source.Name).Inc()
		return c.fallback
	}
	if c.cache != nil {
		c.cache.Set(cacheKey, rate, cache.WithExpiration(c.cacheTTL))
	}
	return rate
}

// Convert converts an amount in rubles to TON, rounded to the maximum TON
// precision. It never fails: a bad rate falls back to the fixed one.
func (c *Converter) Convert(ctx context.Context, fiatAmount decimal.Decimal) decimal.Decimal {
	rate := c.Rate(ctx)
	if rate <= 0 {
		rate = c.fallback
	}
	return fiatAmount.DivRound(decimal.NewFromFloat(rate), tonDecimals)
}

func convertedCoinGeckoResponse(respBody io.ReadCloser) (float64, error) {
	defer respBody.Close()
	var data struct {
		TheOpenNetwork struct {
			Rub float64 `json:"rub"`
		} `json:"the-open-network"`
	}
	if err := json.NewDecoder(respBody).Decode(&data); err != nil {
		return 0, fmt.Errorf("[convertedCoinGeckoResponse] failed to decode response: %v", err)
	}
	if data.TheOpenNetwork.Rub == 0 {
		return 0, fmt.Errorf("[convertedCoinGeckoResponse] empty data")
	}
	return data.TheOpenNetwork.Rub, nil
}

func (c *Converter) sendRequest(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var errRespBody string
		if respBody, err := io.ReadAll(resp.Body); err == nil {
			errRespBody = string(respBody)
		}
		resp.Body.Close()
		return nil, fmt.Errorf("bad status code: %v %v %v", resp.StatusCode, url, errRespBody)
	}
	return resp.Body, nil
}
