package duck

import (
	"context"
	"fmt"
	log "log/slog"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"sahyatri/internal/speech"
)

const maxVolume = 150

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

// Runner executes pactl with args and returns its stdout.
type Runner func(ctx context.Context, args ...string) ([]byte, error)

func pactl(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "pactl", args...).Output()
}

type sinkInput struct {
	ID      int
	Volume  int
	AppName string
}

type fade struct {
	id       int
	from, to int
}

// Ducker lowers every PulseAudio sink input except our own while the
// assistant talks, then restores them. Overlapping utterances share one
// duck: volumes come back when the last of them ends.
type Ducker struct {
	selfNames []string
	minVolume int
	factor    float64
	fadeTime  time.Duration
	run       Runner

	mu       sync.Mutex
	users    int
	active   bool
	original map[int]int
}

func New(selfNames []string, minVolume int, factor float64, fadeTime time.Duration) *Ducker {
	return &Ducker{
		selfNames: append([]string(nil), selfNames...),
		minVolume: clampVolume(minVolume),
		factor:    factor,
		fadeTime:  fadeTime,
		run:       pactl,
		original:  make(map[int]int),
	}
}

// WithRunner replaces the pactl invocation.
func (d *Ducker) WithRunner(r Runner) *Ducker {
	d.run = r
	return d
}

// Duck fades foreign streams down to factor of their volume, never below
// minVolume. Every Duck must be paired with an Unduck, including failed
// ones: streams touched by an interrupted fade are restored by the last
// Unduck.
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.users++
	if d.active {
		return nil
	}

	inputs, err := d.listSinkInputs(ctx)
	if err != nil {
		return err
	}

	d.original = make(map[int]int)
	var fades []fade
	for _, in := range inputs {
		if d.isSelf(in) {
			continue
		}
		to := math.Max(float64(in.Volume)*d.factor, float64(d.minVolume))
		d.original[in.ID] = in.Volume
		fades = append(fades, fade{id: in.ID, from: in.Volume, to: clampVolume(int(math.Round(to)))})
	}
	d.active = len(fades) > 0

	return d.applyFades(ctx, fades)
}

// Unduck releases one Duck. The last release fades ducked streams back;
// streams that appeared after Duck are left alone. A failed restore is
// retried by the next release.
func (d *Ducker) Unduck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.users > 0 {
		d.users--
	}
	if d.users > 0 || !d.active {
		return nil
	}

	inputs, err := d.listSinkInputs(ctx)
	if err != nil {
		return err
	}

	var fades []fade
	for _, in := range inputs {
		orig, ok := d.original[in.ID]
		if !ok || d.isSelf(in) {
			continue
		}
		fades = append(fades, fade{id: in.ID, from: in.Volume, to: orig})
	}

	if err := d.applyFades(ctx, fades); err != nil {
		return err
	}
	d.original = make(map[int]int)
	d.active = false
	return nil
}

// Ducked reports whether foreign streams are currently lowered.
func (d *Ducker) Ducked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Wrap ducks other audio for the duration of every utterance.
func (d *Ducker) Wrap(syn speech.Synthesizer) speech.Synthesizer {
	return &duckedSynth{Synthesizer: syn, d: d}
}

type duckedSynth struct {
	speech.Synthesizer
	d *Ducker
}

func (s *duckedSynth) Speak(ctx context.Context, u speech.Utterance) error {
	if err := s.d.Duck(ctx); err != nil {
		log.Warn("Failed to duck audio", "err", err)
	}
	defer func() {
		// the utterance ctx may already be cancelled
		uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second+s.d.fadeTime)
		defer cancel()
		if err := s.d.Unduck(uctx); err != nil {
			log.Warn("Failed to restore audio", "err", err)
		}
	}()

	return s.Synthesizer.Speak(ctx, u)
}

func (d *Ducker) isSelf(in sinkInput) bool {
	for _, name := range d.selfNames {
		if in.AppName == name {
			return true
		}
	}
	return false
}

func (d *Ducker) applyFades(ctx context.Context, fades []fade) error {
	if len(fades) == 0 {
		return nil
	}
	duration := d.fadeTime

	const minStep = 10 * time.Millisecond
	steps := max(int(duration/minStep), 1)
	if duration <= 0 {
		steps = 0
	}

	for i := 0; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := 1.0
		if steps > 0 {
			frac = float64(i) / float64(steps)
		}
		for _, f := range fades {
			v := int(math.Round(float64(f.from) + float64(f.to-f.from)*frac))
			if err := d.setSinkInputVolume(ctx, f.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", f.id, err)
			}
		}

		if i < steps {
			time.Sleep(duration / time.Duration(steps))
		}
	}
	return nil
}

func (d *Ducker) listSinkInputs(ctx context.Context) ([]sinkInput, error) {
	out, err := d.run(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

// parseSinkInputs reads `pactl list sink-inputs` output.
func parseSinkInputs(text string) []sinkInput {
	var res []sinkInput

	blocks := strings.Split(text, "Sink Input #")
	for _, block := range blocks[1:] {
		head, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil {
			continue
		}

		in := sinkInput{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && in.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); m != nil {
					in.Volume, _ = strconv.Atoi(m[1])
				}
			}
			if v, ok := strings.CutPrefix(line, "application.name = "); ok && in.AppName == "" {
				in.AppName = strings.Trim(v, `"`)
			}
		}

		if in.Volume == 0 && in.AppName == "" {
			continue
		}
		res = append(res, in)
	}
	return res
}

func (d *Ducker) setSinkInputVolume(ctx context.Context, id int, percent int) error {
	arg := strconv.Itoa(clampVolume(percent)) + "%"
	_, err := d.run(ctx, "set-sink-input-volume", strconv.Itoa(id), arg)
	return err
}

func clampVolume(v int) int {
	return min(max(v, 0), maxVolume)
}
