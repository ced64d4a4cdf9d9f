package relay

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyrelay/hyrelay/internal/config"
	"github.com/hyrelay/hyrelay/internal/obslog"
	"github.com/hyrelay/hyrelay/internal/upstream"
)

// Probe periodically measures the upstream round trip and raises alerts over
// the configured thresholds. Probe failures are swallowed.
type Probe struct {
	pinger upstream.Pinger
	cfg    *config.Store
	emit   func(line string)
}

func NewProbe(pinger upstream.Pinger, cfg *config.Store, emit func(line string)) *Probe {
	return &Probe{pinger: pinger, cfg: cfg, emit: emit}
}

// Run tickers until ctx is cancelled. ping_alerts and ping_interval are
// re-read each tick, so both can be changed live through update-config.
func (p *Probe) Run(ctx context.Context) {
	t := time.NewTimer(p.interval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		t.Reset(p.interval())
		if !p.cfg.Bool("ping_alerts") {
			continue
		}
		rtt, err := p.pinger.Ping(ctx)
		if err != nil {
			obslog.L().Debug("latency probe failed", zap.Error(err))
			continue
		}
		if line := p.alertFor(rtt.Milliseconds()); line != "" {
			p.emit(line)
		}
	}
}

func (p *Probe) interval() time.Duration {
	d := time.Duration(p.cfg.Int("ping_interval")) * time.Millisecond
	if d <= 0 {
		d = 30 * time.Second
	}
	return d
}

// alertFor maps a measured round trip to an alert line, or "" below both
// thresholds.
func (p *Probe) alertFor(ms int64) string {
	switch {
	case ms >= int64(p.cfg.Int("ping_benchmarks.high")):
		return fmt.Sprintf("§c%d ms", ms)
	case ms >= int64(p.cfg.Int("ping_benchmarks.medium")):
		return fmt.Sprintf("§6%d ms", ms)
	default:
		return ""
	}
}
