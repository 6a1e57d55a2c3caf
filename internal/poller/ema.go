package poller

import (
	"math"
	"sync"
	"time"
)

var getNow = time.Now

// GaugeEMA is an exponential moving average over an irregularly sampled gauge.
// The weight of a new sample is 1-exp(-dt/avgInterval), so the smoothing is
// independent of the sampling rate: skipped poll cycles widen the gap and the
// next sample simply weighs more
type GaugeEMA struct {
	avgInterval time.Duration

	lk       sync.RWMutex
	value    float64
	lastTime time.Time
}

func NewGaugeEMA(avgInterval time.Duration) *GaugeEMA {
	return &GaugeEMA{avgInterval: avgInterval}
}

// Add mixes a new sample into the average. The first sample primes the value
func (c *GaugeEMA) Add(v float64) {
	c.lk.Lock()
	defer c.lk.Unlock()

	now := getNow()
	if c.lastTime.IsZero() {
		c.value = v
		c.lastTime = now
		return
	}

	alpha := 1 - math.Exp(-float64(now.Sub(c.lastTime))/float64(c.avgInterval))
	c.value = c.value*(1-alpha) + v*alpha
	c.lastTime = now
}

// Value returns the current smoothed value
func (c *GaugeEMA) Value() float64 {
	c.lk.RLock()
	defer c.lk.RUnlock()
	return c.value
}
