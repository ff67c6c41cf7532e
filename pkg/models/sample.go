package models

import (
    "encoding/json"
    "fmt"
    "strings"
    "time"

    "github.com/alim08/coingraph/pkg/validation"
)

// TimestampLayout is the ISO-8601 form stamped onto new samples. UTC with a
// fixed width keeps lexical and chronological order identical.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// RecordExt is the extension of durable record files.
const RecordExt = ".json"

// MarketSample is one market snapshot. Nil figures mean the source omitted
// them; they are written as JSON null.
type MarketSample struct {
    Timestamp string   `json:"timestamp" validate:"required,isotime"`
    PriceUSD  *float64 `json:"price_usd" validate:"omitempty,amount"`
    MarketCap *float64 `json:"market_cap" validate:"omitempty,amount"`
    Volume24h *float64 `json:"volume_24h" validate:"omitempty,amount"`
}

// NewMarketSample stamps a sample with t in UTC.
func NewMarketSample(t time.Time, price, marketCap, volume *float64) MarketSample {
    return MarketSample{
        Timestamp: t.UTC().Format(TimestampLayout),
        PriceUSD:  price,
        MarketCap: marketCap,
        Volume24h: volume,
    }
}

// Validate validates the MarketSample struct
func (s MarketSample) Validate() error {
    if errs := validation.ValidateStruct(s); len(errs) > 0 {
        return errs
    }
    return nil
}

// RecordName derives the durable record file name from the timestamp with
// ':' replaced so the name is safe on every filesystem.
func (s MarketSample) RecordName() string {
    return RecordName(s.Timestamp)
}

// RecordName maps a sample timestamp to its durable record file name.
func RecordName(timestamp string) string {
    return strings.ReplaceAll(timestamp, ":", "_") + RecordExt
}

// Params returns the graph upsert parameters for the sample.
func (s MarketSample) Params() map[string]any {
    return map[string]any{
        "timestamp":  s.Timestamp,
        "price_usd":  floatOrNil(s.PriceUSD),
        "market_cap": floatOrNil(s.MarketCap),
        "volume_24h": floatOrNil(s.Volume24h),
    }
}

// HashFields flattens the sample into ordered field/value pairs for a Redis
// hash. Missing figures become "".
func (s MarketSample) HashFields() []interface{} {
    return []interface{}{
        "timestamp", s.Timestamp,
        "price_usd", formatFloat(s.PriceUSD),
        "market_cap", formatFloat(s.MarketCap),
        "volume_24h", formatFloat(s.Volume24h),
    }
}

// ToJSON converts to JSON string for pub/sub
func (s MarketSample) ToJSON() (string, error) {
    data, err := json.Marshal(s)
    if err != nil {
        return "", fmt.Errorf("json marshal error: %w", err)
    }
    return string(data), nil
}

// MarketSampleFromJSON decodes and validates a durable record.
func MarketSampleFromJSON(data []byte) (MarketSample, error) {
    var s MarketSample
    if err := json.Unmarshal(data, &s); err != nil {
        return s, fmt.Errorf("json unmarshal error: %w", err)
    }
    s.Timestamp = validation.SanitizeString(s.Timestamp)
    if err := s.Validate(); err != nil {
        return s, fmt.Errorf("validation failed: %w", err)
    }
    return s, nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
    return &v
}

func floatOrNil(v *float64) any {
    if v == nil {
        return nil
    }
    return *v
}

func formatFloat(v *float64) string {
    if v == nil {
        return ""
    }
    return fmt.Sprintf("%.8f", *v)
}
