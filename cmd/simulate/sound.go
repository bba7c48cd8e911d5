package main

import (
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"
)

const sampleRate = beep.SampleRate(44100)

// beeper 出局提示音；nil 时静音
type beeper struct {
	length int
}

func newBeeper() (*beeper, error) {
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return nil, err
	}
	return &beeper{length: sampleRate.N(80 * time.Millisecond)}, nil
}

func (b *beeper) play() {
	if b == nil {
		return
	}
	sine, err := generators.SineTone(sampleRate, 880)
	if err != nil {
		return
	}
	speaker.Play(beep.Take(b.length, sine))
}
