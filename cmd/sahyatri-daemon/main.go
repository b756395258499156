package main

import (
	"context"
	"errors"
	log "log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"

	"sahyatri/internal/audio"
	"sahyatri/internal/config"
	"sahyatri/internal/dialogue"
	"sahyatri/internal/duck"
	"sahyatri/internal/ipc"
	"sahyatri/internal/navigate"
	"sahyatri/internal/notify"
	"sahyatri/internal/speech"
	"sahyatri/internal/tts"
	"sahyatri/pkg/intent"
	"sahyatri/pkg/stt"
)

func main() {
	cfg, err := config.Parse("sahyatri-daemon", os.Args[1:])
	if errors.Is(err, cli.ErrHelp) {
		return
	}
	if err != nil {
		log.Error("Failed to parse config", "err", err)
		os.Exit(2)
	}
	cfg.SetupLogging(os.Stdout)

	log.Info("Booting up")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	routes, faqs, err := cfg.Tables()
	if err != nil {
		log.Error("Failed to load tables", "file", cfg.TablesFile, "err", err)
		os.Exit(1)
	}

	httpClient, err := cfg.HTTPClient()
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", cfg.Proxy, "err", err)
		os.Exit(1)
	}

	assistant, err := cfg.Assistant(ctx, httpClient)
	if err != nil {
		log.Error("Failed to create answer provider", "provider", cfg.Provider, "err", err)
		os.Exit(1)
	}

	rec := audio.NewRecorder(audio.DefaultEndpointConfig())
	if err := rec.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer rec.Close()

	log.Debug("Loaded recorder")

	if cfg.WhisperModel == "" {
		log.Error("Whisper model is required, pass --whisper")
		os.Exit(1)
	}
	whisper, err := stt.NewTranscriber(cfg.WhisperModel)
	if err != nil {
		log.Error("Failed to init whisper", "model", cfg.WhisperModel, "err", err)
		os.Exit(1)
	}
	defer whisper.Close()

	log.Debug("Loaded whisper")

	espeak, err := tts.NewEspeak()
	if err != nil {
		log.Error("Failed to init espeak", "err", err)
		os.Exit(1)
	}
	defer espeak.Close()

	ducker := duck.New([]string{"espeak", "sahyatri-daemon"}, 10, 0.3, 300*time.Millisecond)
	cue := notify.NewCue(cfg.CueFile)

	adapter := speech.NewAdapter(cfg.SpeechConfig(), audio.NewListener(rec, whisper, cue.Play), ducker.Wrap(espeak))
	defer adapter.Close()

	nav := navigate.NewEffector(nil, navigate.LocatorFunc(func(path string) error {
		return openURL(cfg.AppURL, path)
	}))
	defer nav.Close()

	opts := []dialogue.Option{
		dialogue.WithSpeaker(adapter),
		dialogue.WithNavigator(nav),
		dialogue.WithObserver(logObserver{}),
	}
	if assistant != nil {
		opts = append(opts, dialogue.WithAnswerer(assistant))
	}
	session := dialogue.NewSession(cfg.SessionConfig(), intent.NewMatcher(routes, faqs), opts...)

	var wg sync.WaitGroup
	defer wg.Wait()

	queue := session.NewQueue()
	wg.Add(1)
	go func() {
		defer wg.Done()
		queue.Run(ctx)
	}()

	adapter.OnTranscript(queue.Push)
	adapter.OnStateChange(func(st speech.State) {
		log.Debug("Speech state", "listening", st.Listening, "speaking", st.Speaking, "voice", st.VoiceEnabled)
	})

	srv, err := ipc.Listen(cfg.SocketPath, func(msg ipc.ControlMessage) error {
		log.Info("Control command", "cmd", msg.Cmd)
		switch msg.Cmd {
		case ipc.LISTEN:
			adapter.CancelSpeaking()
			return adapter.StartListening()
		case ipc.STOP:
			adapter.StopListening()
			adapter.CancelSpeaking()
		case ipc.MUTE:
			adapter.SetVoiceEnabled(false)
		case ipc.UNMUTE:
			adapter.SetVoiceEnabled(true)
		case ipc.SAY:
			queue.Push(msg.Text)
		}
		return nil
	})
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	defer srv.Close()

	log.Info("Boot up - successful", "socket", cfg.SocketPath)

	<-ctx.Done()
	log.Info("Shutting down")
}

// logObserver prints the conversation, the daemon has no other display.
type logObserver struct{}

func (logObserver) MessageAppended(m dialogue.Message) {
	if m.Role == dialogue.RoleUser {
		log.Info("You", "text", m.Text)
		return
	}
	log.Info("Assistant", "text", m.Text, "goto", m.DestinationPath)
}

func (logObserver) LoadingChanged(loading bool) {
	if loading {
		log.Debug("Thinking")
	}
}

func (logObserver) VoiceChanged(enabled bool) {
	log.Info("Voice output", "enabled", enabled)
}

func openURL(base, path string) error {
	url := strings.TrimRight(base, "/") + path
	log.Info("Opening", "url", url)
	cmd := exec.Command("xdg-open", url)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
