// ABOUTME: Audio/master clock drift history and correction decisions
// ABOUTME: Rolling 8-sample window with small stretches and a hard resync when far behind
package driver

import "time"

const (
	driftHistory   = 8
	driftThreshold = 30 * time.Millisecond
	driftStretch   = 12 * time.Millisecond
	driftCritical  = 280 * time.Millisecond
)

type correctionKind int

const (
	correctNone    correctionKind = iota
	correctPad                    // audio ahead: repeat a slice of audio
	correctDrop                   // audio behind: skip a slice of audio
	correctDiscard                // audio far behind: skip the whole lag
)

func (k correctionKind) String() string {
	switch k {
	case correctPad:
		return "pad"
	case correctDrop:
		return "drop"
	case correctDiscard:
		return "discard"
	default:
		return "none"
	}
}

type correction struct {
	kind   correctionKind
	amount time.Duration
}

// compensator keeps the last driftHistory samples of audio time minus master
// time, oldest evicted first.
type compensator struct {
	samples [driftHistory]time.Duration
	head    int
	count   int
}

func (c *compensator) push(d time.Duration) {
	if c.count < driftHistory {
		c.samples[(c.head+c.count)%driftHistory] = d
		c.count++
		return
	}
	c.samples[c.head] = d
	c.head = (c.head + 1) % driftHistory
}

// average returns the mean drift and whether the window is full
func (c *compensator) average() (time.Duration, bool) {
	if c.count == 0 {
		return 0, false
	}
	var sum time.Duration
	for i := 0; i < c.count; i++ {
		sum += c.samples[(c.head+i)%driftHistory]
	}
	return sum / time.Duration(c.count), c.count == driftHistory
}

func (c *compensator) len() int {
	return c.count
}

// history returns the samples oldest first
func (c *compensator) history() []time.Duration {
	out := make([]time.Duration, c.count)
	for i := range out {
		out[i] = c.samples[(c.head+i)%driftHistory]
	}
	return out
}

func (c *compensator) reset() {
	c.head, c.count = 0, 0
}

// measure records a drift sample and decides what to do about it. A sample more
// than driftCritical behind discards the lag and starts a fresh window; being far
// ahead only gets the regular stretch.
func (c *compensator) measure(drift time.Duration) correction {
	c.push(drift)

	if drift < -driftCritical {
		c.reset()
		return correction{kind: correctDiscard, amount: -drift}
	}

	avg, full := c.average()
	if !full {
		return correction{}
	}
	switch {
	case avg > driftThreshold:
		return correction{kind: correctPad, amount: driftStretch}
	case avg < -driftThreshold:
		return correction{kind: correctDrop, amount: driftStretch}
	}
	return correction{}
}
