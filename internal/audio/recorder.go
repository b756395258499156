package audio

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	SampleRate = 16000
	frameSize  = 320 // 20ms
)

type EndpointConfig struct {
	SilenceRMS  float64       // frames below this are silence
	TrailingGap time.Duration // silence after speech that ends the clip
	LeadTimeout time.Duration // give up if nobody speaks
	MaxLength   time.Duration
}

func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		SilenceRMS:  0.015,
		TrailingGap: 600 * time.Millisecond,
		LeadTimeout: 5 * time.Second,
		MaxLength:   10 * time.Second,
	}
}

// Recorder captures single utterances from the default input device.
type Recorder struct {
	cfg EndpointConfig
	mu  sync.Mutex
}

func NewRecorder(cfg EndpointConfig) *Recorder { return &Recorder{cfg: cfg} }

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// RecordAuto records until the speaker pauses. It returns nil samples when
// nobody spoke and ctx.Err() when cancelled.
func (r *Recorder) RecordAuto(ctx context.Context) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf := make([]float32, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	ep := newEndpointer(r.cfg)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := stream.Read(); err != nil {
			return nil, err
		}
		if ep.push(buf) {
			return ep.clip(), nil
		}
	}
}

// endpointer decides when an utterance is over, frame by frame.
type endpointer struct {
	silenceRMS  float64
	gapFrames   int
	leadFrames  int
	maxFrames   int
	frames      int
	speaking    bool
	silentAfter int
	out         []float32
}

func newEndpointer(cfg EndpointConfig) *endpointer {
	perFrame := time.Second * frameSize / SampleRate
	return &endpointer{
		silenceRMS: cfg.SilenceRMS,
		gapFrames:  int(cfg.TrailingGap / perFrame),
		leadFrames: int(cfg.LeadTimeout / perFrame),
		maxFrames:  int(cfg.MaxLength / perFrame),
		out:        make([]float32, 0, SampleRate*3),
	}
}

// push consumes a frame and reports whether recording should stop.
func (e *endpointer) push(frame []float32) bool {
	e.frames++

	if frameRMS(frame) > e.silenceRMS {
		e.speaking = true
		e.silentAfter = 0
		e.out = append(e.out, frame...)
	} else if e.speaking {
		e.silentAfter++
		if e.silentAfter >= e.gapFrames {
			return true
		}
		e.out = append(e.out, frame...)
	} else if e.leadFrames > 0 && e.frames >= e.leadFrames {
		return true
	}

	return e.maxFrames > 0 && e.frames >= e.maxFrames
}

func (e *endpointer) clip() []float32 {
	if !e.speaking {
		return nil
	}
	return e.out
}

func frameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
