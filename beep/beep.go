// Package beep plays the short start, end and error cues.
package beep

import (
	"math"
	"sync"
	"sync/atomic"
)

const (
	sampleRate = 44100

	// Start beep: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End beep: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Error beep: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
	errorBeep   = 0.08
	errorGap    = 0.05
)

type Cue int

const (
	CueStart Cue = iota
	CueEnd
	CueError
)

var (
	cueSamples [3][]int16
	soundOnce  sync.Once
)

// render builds the mono samples of every cue. startDur and endDur are
// platform specific: pulse needs a longer tail to fill its buffer.
func render() {
	cueSamples[CueStart] = tick(sampleRate, startFreq, startDur, startVolume, startDecay)
	cueSamples[CueEnd] = tick(sampleRate, endFreq, endDur, endVolume, endDecay)
	cueSamples[CueError] = doubleBeep(sampleRate, errorFreq, errorBeep, errorGap, errorVolume, errorDecay)
}

func tick(rate int, freq, duration, volume, decay float64) []int16 {
	n := int(float64(rate) * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / float64(rate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func doubleBeep(rate int, freq, beepDur, gapDur, volume, decay float64) []int16 {
	beep := tick(rate, freq, beepDur, volume, decay)
	gap := make([]int16, int(float64(rate)*gapDur))
	out := make([]int16, 0, len(beep)*2+len(gap))
	out = append(out, beep...)
	out = append(out, gap...)
	return append(out, beep...)
}

// Player implements the dictation cues on the default output device.
type Player struct {
	disabled atomic.Bool
}

func New() *Player {
	return &Player{}
}

// Init prepares the output device ahead of the first cue.
func (p *Player) Init() {
	soundOnce.Do(initSound)
}

func (p *Player) Disable() { p.disabled.Store(true) }

func (p *Player) PlayStart() { p.play(CueStart) }
func (p *Player) PlayEnd()   { p.play(CueEnd) }
func (p *Player) PlayError() { p.play(CueError) }

func (p *Player) play(c Cue) {
	if p.disabled.Load() {
		return
	}
	soundOnce.Do(initSound)
	playCue(c)
}
