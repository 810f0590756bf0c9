package offline

import (
	"time"

	"github.com/rs/zerolog/log"
)

// maybeDrainLocked starts the drain loop unless one is already running.
func (m *Manager) maybeDrainLocked() {
	if !m.online || m.processing || m.closed || m.executor == nil || m.lengthLocked() == 0 {
		return
	}
	m.processing = true
	m.wg.Add(1)
	go m.drain()
}

func (m *Manager) drain() {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		head := m.headLocked()
		if !m.online || m.closed || head == nil {
			m.processing = false
			m.mu.Unlock()
			return
		}
		req := head.clone()
		executor := m.executor
		m.mu.Unlock()

		err := executor.Execute(m.ctx, &req)

		m.mu.Lock()
		if err != nil && m.ctx.Err() != nil {
			// Shutting down: the replay was cut short, not refused.
			m.processing = false
			m.mu.Unlock()
			return
		}
		if err == nil {
			if _, ok := m.removeLocked(req.ID); ok {
				m.persistLocked()
			}
			m.mu.Unlock()
			log.Debug().Str("id", req.ID).Str("method", req.Method).Str("url", req.URL).Msg("replayed queued request")
			continue
		}

		delay, ok := m.recordFailureLocked(req.ID, err)
		m.mu.Unlock()
		if !ok {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-m.ctx.Done():
			timer.Stop()
			m.mu.Lock()
			m.processing = false
			m.mu.Unlock()
			return
		case <-timer.C:
		}
	}
}

// recordFailureLocked bumps the retry count of id and either drops it or
// rotates it to the tail of its band. It returns the backoff to wait and
// whether the entry is still queued.
func (m *Manager) recordFailureLocked(id string, err error) (time.Duration, bool) {
	p, i, found := m.findLocked(id)
	if !found {
		return 0, false
	}
	r := m.bands[p][i]
	r.RetryCount++

	if r.RetryCount >= r.MaxRetries {
		m.bands[p] = append(m.bands[p][:i:i], m.bands[p][i+1:]...)
		m.persistLocked()
		log.Err(err).Str("id", r.ID).Str("method", r.Method).Str("url", r.URL).Int("retries", r.RetryCount).Msg("dropping queued request after final retry")
		m.emitLater(DropEvent{Request: r.clone(), Reason: DropRetriesExhausted, Err: err})
		return 0, false
	}

	m.bands[p] = append(append(m.bands[p][:i:i], m.bands[p][i+1:]...), r)
	m.persistLocked()
	log.Warn().Err(err).Str("id", r.ID).Int("retry", r.RetryCount).Int("max", r.MaxRetries).Msg("queued request replay failed")
	return m.backoffFor(r.RetryCount), true
}

func (m *Manager) backoffFor(retryCount int) time.Duration {
	if len(m.backoff) == 0 {
		return 0
	}
	i := retryCount - 1
	if i >= len(m.backoff) {
		i = len(m.backoff) - 1
	}
	if i < 0 {
		i = 0
	}
	return m.backoff[i]
}
