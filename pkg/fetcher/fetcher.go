// Package fetcher polls the market data API and records one sample per call.
package fetcher

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/alim08/coingraph/pkg/logger"
    "github.com/alim08/coingraph/pkg/metrics"
    "github.com/alim08/coingraph/pkg/models"
    "github.com/alim08/coingraph/pkg/records"
    "go.uber.org/zap"
)

// DefaultURL is the CoinGecko bitcoin snapshot endpoint.
const DefaultURL = "https://api.coingecko.com/api/v3/coins/bitcoin"

// maxBody caps how much of a response is read.
const maxBody = 8 << 20

// Publisher receives every recorded sample. Optional.
type Publisher interface {
    PublishSample(ctx context.Context, s models.MarketSample) error
}

// Options configures a Fetcher.
type Options struct {
    URL     string
    APIKey  string
    Timeout time.Duration
}

type Fetcher struct {
    url       string
    apiKey    string
    client    *http.Client
    recs      *records.Store
    publisher Publisher
    now       func() time.Time
}

// New builds a Fetcher writing to recs. pub may be nil.
func New(opts Options, recs *records.Store, pub Publisher) *Fetcher {
    if opts.URL == "" {
        opts.URL = DefaultURL
    }
    if opts.Timeout == 0 {
        opts.Timeout = 10 * time.Second
    }
    return &Fetcher{
        url:    opts.URL,
        apiKey: opts.APIKey,
        client: &http.Client{
            Timeout: opts.Timeout,
            Transport: &http.Transport{
                MaxIdleConns:        10,
                MaxIdleConnsPerHost: 5,
                IdleConnTimeout:     30 * time.Second,
            },
        },
        recs:      recs,
        publisher: pub,
        now:       time.Now,
    }
}

// WithClock overrides the wall clock used to stamp samples.
func (f *Fetcher) WithClock(now func() time.Time) *Fetcher {
    f.now = now
    return f
}

// WithHTTPClient overrides the HTTP client.
func (f *Fetcher) WithHTTPClient(c *http.Client) *Fetcher {
    f.client = c
    return f
}

// Run fetches one sample, records it and publishes it. Fetch failures are
// soft: they are logged and Run returns (nil, nil) so the next tick retries.
// Only a failure to write the durable record is returned.
func (f *Fetcher) Run(ctx context.Context) (*models.MarketSample, error) {
    start := time.Now()
    defer func() { metrics.FetchLatency.Observe(time.Since(start).Seconds()) }()

    sample, err := f.Fetch(ctx)
    if err != nil {
        logger.Log.Warn("market fetch failed", zap.String("url", f.url), zap.Error(err))
        metrics.FetchErrors.Inc()
        return nil, nil
    }

    name, err := f.recs.Write(*sample)
    if err != nil {
        metrics.FetchErrors.Inc()
        return nil, fmt.Errorf("record sample: %w", err)
    }
    metrics.FetchCounter.Inc()
    logger.Log.Info("market sample recorded",
        zap.String("record", name),
        zap.String("timestamp", sample.Timestamp),
        zap.Float64p("price_usd", sample.PriceUSD))

    if f.publisher != nil {
        if err := f.publisher.PublishSample(ctx, *sample); err != nil {
            logger.Log.Warn("sample publish failed", zap.String("record", name), zap.Error(err))
        }
    }
    return sample, nil
}

// Fetch issues one request and extracts the sample. Missing or malformed
// figures come back nil; only transport, status and top-level JSON errors
// fail the call.
func (f *Fetcher) Fetch(ctx context.Context) (*models.MarketSample, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
    if err != nil {
        return nil, fmt.Errorf("build request: %w", err)
    }
    req.Header.Set("Accept", "application/json")
    if f.apiKey != "" {
        req.Header.Set("x-cg-demo-api-key", f.apiKey)
    }

    resp, err := f.client.Do(req)
    if err != nil {
        return nil, fmt.Errorf("http get: %w", err)
    }
    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
        return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
    }

    body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
    if err != nil {
        return nil, fmt.Errorf("read body: %w", err)
    }
    price, marketCap, volume, err := parseMarketData(body)
    if err != nil {
        return nil, err
    }
    sample := models.NewMarketSample(f.now(), price, marketCap, volume)
    return &sample, nil
}

// parseMarketData pulls the USD figures out of a coin document. Each figure
// is decoded independently so one odd field cannot spoil the others.
func parseMarketData(body []byte) (price, marketCap, volume *float64, err error) {
    var doc map[string]json.RawMessage
    if err := json.Unmarshal(body, &doc); err != nil {
        return nil, nil, nil, fmt.Errorf("json decode error: %w", err)
    }
    var marketData map[string]json.RawMessage
    if raw, ok := doc["market_data"]; ok {
        if err := json.Unmarshal(raw, &marketData); err != nil {
            logger.Log.Debug("ignoring malformed market_data", zap.Error(err))
        }
    }
    return usd(marketData, "current_price"),
        usd(marketData, "market_cap"),
        usd(marketData, "total_volume"),
        nil
}

func usd(data map[string]json.RawMessage, field string) *float64 {
    raw, ok := data[field]
    if !ok {
        return nil
    }
    var byCurrency map[string]*float64
    if err := json.Unmarshal(raw, &byCurrency); err != nil {
        logger.Log.Debug("ignoring malformed market field", zap.String("field", field), zap.Error(err))
        return nil
    }
    return byCurrency["usd"]
}
