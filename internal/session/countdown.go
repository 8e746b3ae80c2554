package session

import (
	"context"
	"time"

	"github.com/stemsi/exstem-portal/internal/model"
)

// Ticker is the countdown's clock source.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker is the production ticker factory.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// startCountdownLocked starts a fresh countdown generation. Ticks from older
// generations are ignored. c.mu must be held.
func (c *Controller) startCountdownLocked() {
	c.cancelCountdownLocked()

	gen := c.timerGen
	t := c.newTicker(time.Second)
	stop := make(chan struct{})
	c.stopTimer = func() {
		close(stop)
		t.Stop()
	}

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-t.C():
				if !c.tick(gen) {
					return
				}
			}
		}
	}()
}

// cancelCountdownLocked is the single cancellation point for every exit from
// active. c.mu must be held.
func (c *Controller) cancelCountdownLocked() {
	c.timerGen++
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
}

// tick decrements the remaining time and triggers the automatic submission at
// zero. It reports whether the countdown should keep running.
func (c *Controller) tick(gen uint64) bool {
	c.mu.Lock()
	if gen != c.timerGen || c.state != model.SessionStateActive {
		c.mu.Unlock()
		return false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining > 0 {
		c.mu.Unlock()
		c.emit(EventTick)
		return true
	}
	c.timeExpired = true
	c.mu.Unlock()
	c.emit(EventTick)

	c.log.Info().Msg("exam time expired, submitting automatically")
	if _, err := c.submit(context.Background(), triggerTimeout); err != nil {
		c.log.Error().Err(err).Msg("automatic submission failed")
	}
	return false
}
