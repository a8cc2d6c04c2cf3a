package player

import (
	"errors"
	"sync"
	"time"
)

// Simulated is an in-process player handle for demos and tests. It implements
// the full capability set and can inject latency and periodic failures to
// exercise the degradation machinery.
type Simulated struct {
	mu sync.Mutex

	position float64
	state    State
	duration float64

	// SeekLatency is slept on every seek to mimic a slow control surface.
	SeekLatency time.Duration
	// FailEvery makes every Nth seek fail (0 disables failure injection).
	FailEvery int

	seeks int
}

// NewSimulated creates a playing simulated stream of the given length.
func NewSimulated(duration float64) *Simulated {
	return &Simulated{state: StatePlaying, duration: duration}
}

func (p *Simulated) SeekTo(seconds float64, allowAhead bool) error {
	if p.SeekLatency > 0 {
		time.Sleep(p.SeekLatency)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.seeks++
	if p.FailEvery > 0 && p.seeks%p.FailEvery == 0 {
		return errors.New("seek rejected by player")
	}
	if seconds > p.duration {
		seconds = p.duration
	}
	p.position = seconds
	return nil
}

func (p *Simulated) CurrentTime() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, nil
}

func (p *Simulated) PlayerState() (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, nil
}

func (p *Simulated) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StatePlaying
	return nil
}

func (p *Simulated) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StatePaused
	return nil
}

func (p *Simulated) Duration() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration, nil
}

// SeekCount reports how many seeks the handle has received.
func (p *Simulated) SeekCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seeks
}
