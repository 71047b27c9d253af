package sensorhub

import (
	"log"
	"sync/atomic"

	"tiltview/internal/orientation"
)

type sampleWriter interface {
	WriteSample(orientation.Sample) error
}

// Recorder tees every sample handed to the wrapped sink into a replay log.
type Recorder struct {
	w      sampleWriter
	next   Sink
	failed atomic.Bool
}

func NewRecorder(w sampleWriter, next Sink) *Recorder {
	return &Recorder{w: w, next: next}
}

// Sink returns the recording sink to hand to a hub.
func (r *Recorder) Sink() Sink {
	return func(s orientation.Sample) bool {
		if err := r.w.WriteSample(s); err != nil && r.failed.CompareAndSwap(false, true) {
			log.Printf("recorder: write sample: %v", err)
		}
		return r.next(s)
	}
}
