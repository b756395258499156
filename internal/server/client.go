package server

import (
	"context"
	"encoding/json"
	"errors"
	log "log/slog"
	"sync"

	"sahyatri/internal/dialogue"
	"sahyatri/internal/navigate"
	"sahyatri/internal/speech"
	"sahyatri/pkg/protocol"
)

// client is one browser tab: a websocket, a dialogue session and the speech
// and navigation effectors acting through the browser.
type client struct {
	conn    *protocol.Conn
	session *dialogue.Session
	queue   *dialogue.Queue
	speech  *speech.Adapter
	nav     *navigate.Effector
	syn     *remoteSynth
	rec     *remoteRecognizer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	canRecognize bool
}

func newClient(s *Server, conn *protocol.Conn) *client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		conn:         conn,
		ctx:          ctx,
		cancel:       cancel,
		canRecognize: true,
	}

	c.syn = newRemoteSynth(conn)
	c.rec = newRemoteRecognizer(conn, s.deps.Transcriber)
	c.speech = speech.NewAdapter(s.deps.Speech, c.rec, c.syn)
	c.nav = navigate.NewEffector(nil, navigate.LocatorFunc(c.sendPath(protocol.LOCATION)))

	opts := []dialogue.Option{
		dialogue.WithSpeaker(c.speech),
		dialogue.WithNavigator(c.nav),
		dialogue.WithObserver(c),
	}
	if s.deps.Assistant != nil {
		opts = append(opts, dialogue.WithAnswerer(s.deps.Assistant))
	}
	c.session = dialogue.NewSession(s.deps.Session, s.deps.Matcher, opts...)
	c.queue = c.session.NewQueue()

	c.speech.OnStateChange(c.stateChanged)
	c.speech.OnTranscript(c.queue.Push)
	return c
}

func (c *client) run() {
	log.Info("Session started", "session", c.session.ID)
	defer c.teardown()

	c.send(&protocol.Event{Kind: protocol.STATE, State: toState(c.speech.State())})
	for _, m := range c.session.Messages() {
		c.MessageAppended(m)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.queue.Run(c.ctx)
	}()

	for {
		in := c.conn.Read()
		switch in.Kind {
		case protocol.CONN_CLOSE:
			return
		case protocol.READ_FAILURE:
			log.Warn("Failed to parse event", "session", c.session.ID, "err", in.Err)
			c.send(&protocol.Event{Kind: protocol.ERROR, Text: in.Err.Error()})
		case protocol.READ_OK:
			c.handle(in.Event)
		}
	}
}

func (c *client) handle(e *protocol.Event) {
	switch e.Kind {
	case protocol.HELLO:
		if e.Router {
			c.nav.SetRouter(navigate.RouterFunc(c.sendPath(protocol.NAVIGATE)))
		}
		if e.Flag != nil {
			c.mu.Lock()
			c.canRecognize = *e.Flag
			c.mu.Unlock()
		}
		c.syn.setVoices(e.Voices)
	case protocol.UTTERANCE:
		c.queue.Push(e.Text)
	case protocol.LISTEN:
		c.listen()
	case protocol.STOP:
		c.speech.StopListening()
	case protocol.TRANSCRIPT:
		c.rec.resolve(e.ID, recognition{text: e.Text})
	case protocol.RECOG_ERROR:
		c.rec.resolve(e.ID, recognition{err: errors.New(e.Text)})
	case protocol.AUDIO:
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.rec.transcribe(c.ctx, e.ID, e.Format, e.Audio)
		}()
	case protocol.SPOKEN:
		c.syn.spoken(e.ID)
	case protocol.VOICES:
		c.syn.setVoices(e.Voices)
	case protocol.VOICE:
		c.speech.SetVoiceEnabled(*e.Flag)
	case protocol.CANCEL:
		c.speech.CancelSpeaking()
	}
}

// listen starts a recognition attempt when the browser can recognize speech
// itself or the server can transcribe its recordings.
func (c *client) listen() {
	c.mu.Lock()
	can := c.canRecognize || c.rec.tr != nil
	c.mu.Unlock()

	if !can {
		c.send(&protocol.Event{Kind: protocol.ERROR, Text: speech.ErrRecognitionUnsupported.Error()})
		return
	}
	if err := c.speech.StartListening(); err != nil {
		c.send(&protocol.Event{Kind: protocol.ERROR, Text: err.Error()})
	}
}

func (c *client) teardown() {
	c.cancel()
	c.nav.Close()
	c.speech.Close()
	c.wg.Wait()
	c.conn.Close()
	log.Info("Session closed", "session", c.session.ID)
}

func (c *client) send(e *protocol.Event) {
	if err := c.conn.Send(e); err != nil {
		log.Debug("Failed to send event", "kind", e.Kind, "err", err)
	}
}

func (c *client) sendPath(kind protocol.Kind) func(string) error {
	return func(path string) error {
		return c.conn.Send(&protocol.Event{Kind: kind, Path: path})
	}
}

func (c *client) stateChanged(st speech.State) {
	c.send(&protocol.Event{Kind: protocol.STATE, State: toState(st)})
}

func (c *client) MessageAppended(m dialogue.Message) {
	data, err := json.Marshal(m)
	if err != nil {
		log.Error("Failed to encode message", "err", err)
		return
	}
	c.send(&protocol.Event{Kind: protocol.MESSAGE, Message: data})
}

func (c *client) LoadingChanged(loading bool) {
	c.send(&protocol.Event{Kind: protocol.LOADING, Flag: protocol.Bool(loading)})
}

// VoiceChanged is covered by the state events of the speech adapter.
func (c *client) VoiceChanged(bool) {}

func toState(st speech.State) *protocol.State {
	return &protocol.State{
		Listening:    st.Listening,
		Speaking:     st.Speaking,
		VoiceEnabled: st.VoiceEnabled,
	}
}
