// Package pusher moves durable records into the graph store. A record is
// added to the ledger only after the store acknowledges its upsert, so a
// crash in between costs at most one redundant, idempotent re-upsert.
package pusher

import (
    "context"
    "fmt"
    "time"

    "github.com/alim08/coingraph/pkg/graphstore"
    "github.com/alim08/coingraph/pkg/ledger"
    "github.com/alim08/coingraph/pkg/logger"
    "github.com/alim08/coingraph/pkg/metrics"
    "github.com/alim08/coingraph/pkg/records"
    "go.uber.org/zap"
)

// Result summarises one push run.
type Result struct {
    Pending int
    Pushed  int
    Failed  int
}

type Pusher struct {
    recs   *records.Store
    ledger *ledger.Ledger
    store  graphstore.Writer
}

func New(recs *records.Store, l *ledger.Ledger, store graphstore.Writer) *Pusher {
    return &Pusher{recs: recs, ledger: l, store: store}
}

// Pending lists records absent from the ledger, ascending.
func (p *Pusher) Pending() ([]string, error) {
    names, err := p.recs.List()
    if err != nil {
        return nil, err
    }
    done := p.ledger.Load()

    pending := make([]string, 0, len(names))
    for _, name := range names {
        if _, ok := done[name]; !ok {
            pending = append(pending, name)
        }
    }
    return pending, nil
}

// Run pushes every pending record. Records are independent: a failure is
// logged and counted and the rest of the batch continues.
func (p *Pusher) Run(ctx context.Context) (Result, error) {
    var res Result
    pending, err := p.Pending()
    if err != nil {
        return res, fmt.Errorf("list pending records: %w", err)
    }
    res.Pending = len(pending)
    metrics.PushPending.Set(float64(len(pending)))

    for _, name := range pending {
        if ctx.Err() != nil {
            break
        }
        if err := p.pushOne(ctx, name); err != nil {
            res.Failed++
            metrics.PushErrors.Inc()
            logger.Log.Warn("push failed", zap.String("record", name), zap.Error(err))
            continue
        }
        res.Pushed++
        metrics.PushCounter.Inc()
    }

    if res.Pending > 0 {
        logger.Log.Info("push completed",
            zap.Int("pending", res.Pending),
            zap.Int("pushed", res.Pushed),
            zap.Int("failed", res.Failed))
    }
    return res, nil
}

// pushOne reads, upserts and marks a single record. Panics are converted to
// errors so one bad record cannot take down the batch.
func (p *Pusher) pushOne(ctx context.Context, name string) (err error) {
    start := time.Now()
    defer func() {
        if r := recover(); r != nil {
            err = fmt.Errorf("panic pushing %s: %v", name, r)
        }
        metrics.PushLatency.Observe(time.Since(start).Seconds())
    }()

    sample, err := p.recs.Read(name)
    if err != nil {
        return err
    }
    if err := p.store.UpsertTransaction(ctx, sample); err != nil {
        return fmt.Errorf("upsert %s: %w", sample.Timestamp, err)
    }
    if err := p.ledger.Append(name); err != nil {
        return fmt.Errorf("mark %s processed: %w", name, err)
    }
    logger.Log.Debug("record pushed", zap.String("record", name), zap.String("timestamp", sample.Timestamp))
    return nil
}
