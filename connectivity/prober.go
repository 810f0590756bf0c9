package connectivity

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Prober feeds a Monitor from periodic health checks. It stands in for the
// platform online/offline signal on hosts that do not have one.
type Prober struct {
	monitor  *Monitor
	url      string
	interval time.Duration
	http     *http.Client
}

func NewProber(monitor *Monitor, url string, interval time.Duration) *Prober {
	return &Prober{
		monitor:  monitor,
		url:      url,
		interval: interval,
		http:     &http.Client{Timeout: 5 * time.Second},
	}
}

// Run probes until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	if p.interval <= 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		p.Check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check performs one probe. Any HTTP response counts as reachable.
func (p *Prober) Check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.http.Do(req)
	online := err == nil
	if resp != nil {
		_ = resp.Body.Close()
	}
	if p.monitor.SetOnline(online) {
		log.Info().Bool("online", online).Str("url", p.url).Msg("connectivity changed")
	}
	return online
}
