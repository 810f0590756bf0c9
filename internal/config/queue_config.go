package config

import "time"

type QueueConfig interface {
	GetQueueCapacity() int
	GetQueueMaxRetries() int
	GetQueueBackoff() []time.Duration
	GetProbeInterval() time.Duration
}

type Queue struct {
	src *source
}

var _ QueueConfig = Queue{}

var defaultBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

func (q Queue) GetQueueCapacity() int {
	return q.src.integer("QUEUE_CAPACITY", 100)
}

func (q Queue) GetQueueMaxRetries() int {
	return q.src.integer("QUEUE_MAX_RETRIES", 3)
}

// GetQueueBackoff is a comma separated list of durations, e.g. "1s,2s,5s".
func (q Queue) GetQueueBackoff() []time.Duration {
	return q.src.durations("QUEUE_BACKOFF", defaultBackoff)
}

// GetProbeInterval is how often the CLI health-checks the backend to detect
// connectivity transitions. Zero disables probing.
func (q Queue) GetProbeInterval() time.Duration {
	return q.src.duration("PROBE_INTERVAL", 15*time.Second)
}
