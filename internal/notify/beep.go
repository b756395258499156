package notify

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// Cue is a short mp3 played when the assistant starts listening.
type Cue struct {
	path string

	once    sync.Once
	buf     *beep.Buffer
	loadErr error
}

func NewCue(path string) *Cue {
	return &Cue{path: path}
}

func (c *Cue) load() error {
	c.once.Do(func() {
		f, err := os.Open(c.path)
		if err != nil {
			c.loadErr = fmt.Errorf("open cue: %w", err)
			return
		}

		streamer, format, err := mp3.Decode(f)
		if err != nil {
			f.Close()
			c.loadErr = fmt.Errorf("decode cue: %w", err)
			return
		}
		defer streamer.Close()

		buf := beep.NewBuffer(format)
		buf.Append(streamer)

		if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
			c.loadErr = fmt.Errorf("init speaker: %w", err)
			return
		}
		c.buf = buf
	})
	return c.loadErr
}

// Play blocks until the cue has played.
func (c *Cue) Play() error {
	if err := c.load(); err != nil {
		return err
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(c.buf.Streamer(0, c.buf.Len()), beep.Callback(func() {
		close(done)
	})))
	<-done
	return nil
}
