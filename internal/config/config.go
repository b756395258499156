package config

import (
	"context"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"

	"sahyatri/internal/answer"
	"sahyatri/internal/dialogue"
	"sahyatri/internal/proxy"
	"sahyatri/internal/rail"
	"sahyatri/internal/speech"
	"sahyatri/pkg/intent"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// Keys copied from the sample .env are treated as unset.
var placeholderKeys = map[string]bool{
	"your_api_key_here":        true,
	"your_gemini_api_key_here": true,
	"your_openai_api_key_here": true,
}

type Config struct {
	EnvFile  string
	LogLevel string

	Listen       string
	WriteTimeout time.Duration
	TablesFile   string
	Greeting     string
	Locale       string

	Provider        string // gemini | openai | none
	Model           string
	ProviderBaseURL string
	GeminiKey       string
	OpenAIKey       string
	ProviderTimeout time.Duration
	BreakerTimeout  time.Duration
	Proxy           string

	NavigateDelay         time.Duration
	ProviderNavigateDelay time.Duration

	WhisperModel string
	CueFile      string
	SocketPath   string
	AppURL       string

	Rail rail.Config
}

// Parse reads flags from args, then the env file, then the environment for
// secrets.
func Parse(name string, args []string) (*Config, error) {
	c := &Config{Rail: rail.DefaultConfig()}

	fs := cli.NewFlagSet(name, cli.ContinueOnError)
	fs.StringVarP(&c.EnvFile, "env", "e", ".env", "Env file path")
	fs.StringVarP(&c.LogLevel, "log", "l", "info", "Log level")
	fs.StringVar(&c.Listen, "listen", ":8080", "HTTP listen address")
	fs.DurationVar(&c.WriteTimeout, "write-timeout", 10*time.Second, "Websocket write timeout")
	fs.StringVarP(&c.TablesFile, "tables", "t", "", "YAML file with routes and faqs")
	fs.StringVar(&c.Greeting, "greeting", "Hello! I'm your Sahyatri assistant. Ask me about trains, PNR status or where to go in the app.", "Assistant greeting, empty to disable")
	fs.StringVar(&c.Locale, "locale", "en-US", "Speech locale")
	fs.StringVar(&c.Provider, "provider", "gemini", "Answer provider: gemini, openai or none")
	fs.StringVar(&c.Model, "model", "", "Provider model, empty for the provider default")
	fs.StringVar(&c.ProviderBaseURL, "provider-url", "", "Provider base URL override")
	fs.DurationVar(&c.ProviderTimeout, "provider-timeout", 20*time.Second, "Timeout of a single provider call")
	fs.DurationVar(&c.BreakerTimeout, "breaker-timeout", 30*time.Second, "How long the provider breaker stays open")
	fs.StringVarP(&c.Proxy, "proxy", "p", "", "Socks Proxy Address")
	fs.DurationVar(&c.NavigateDelay, "navigate-delay", 1500*time.Millisecond, "Delay before a matched navigation")
	fs.DurationVar(&c.ProviderNavigateDelay, "provider-navigate-delay", 2000*time.Millisecond, "Delay before a provider suggested navigation")
	fs.StringVar(&c.WhisperModel, "whisper", "", "Whisper ggml model path, empty disables server-side transcription")
	fs.StringVar(&c.CueFile, "cue", "beep.mp3", "Listening cue mp3")
	fs.StringVar(&c.SocketPath, "socket", "/tmp/sahyatri.sock", "Daemon control socket")
	fs.StringVar(&c.AppURL, "app-url", "http://localhost:5173", "Web app opened by the daemon on navigation")
	fs.StringVar(&c.Rail.PNRBaseURL, "pnr-url", c.Rail.PNRBaseURL, "PNR API base URL")
	fs.StringVar(&c.Rail.StatusBaseURL, "status-url", c.Rail.StatusBaseURL, "Live status API base URL")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if _, ok := logLevelMap[c.LogLevel]; !ok {
		return nil, fmt.Errorf("unknown log level %q", c.LogLevel)
	}

	if err := godotenv.Load(c.EnvFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load %s: %w", c.EnvFile, err)
	}

	c.GeminiKey = apiKey("GEMINI_API_KEY")
	c.OpenAIKey = apiKey("OPENAI_API_KEY")
	c.Rail.RapidAPIKey = apiKey("RAPIDAPI_KEY")
	c.Rail.StatusAPIKey = apiKey("INDIAN_RAIL_API_KEY")

	switch c.Provider {
	case "gemini", "openai", "none":
	default:
		return nil, fmt.Errorf("unknown provider %q", c.Provider)
	}
	return c, nil
}

func apiKey(env string) string {
	v := strings.TrimSpace(os.Getenv(env))
	if placeholderKeys[strings.ToLower(v)] {
		return ""
	}
	return v
}

// SetupLogging installs a tint handler as the default logger.
func (c *Config) SetupLogging(w io.Writer) {
	log.SetDefault(log.New(tint.NewHandler(w, &tint.Options{
		Level:      logLevelMap[c.LogLevel],
		TimeFormat: time.TimeOnly,
	})))
}

func (c *Config) Tables() (*intent.RouteTable, *intent.FaqTable, error) {
	if c.TablesFile == "" {
		return intent.DefaultRoutes(), intent.DefaultFaqs(), nil
	}
	return intent.LoadTables(c.TablesFile)
}

func (c *Config) HTTPClient() (*http.Client, error) {
	return proxy.NewClient(c.Proxy)
}

// AnswerProvider builds the configured provider behind a circuit breaker.
// It returns nil when no provider is configured; sessions then answer
// locally.
func (c *Config) AnswerProvider(ctx context.Context, httpClient *http.Client) (answer.Provider, error) {
	pc := answer.ProviderConfig{
		Model:      c.Model,
		BaseURL:    c.ProviderBaseURL,
		HTTPClient: httpClient,
	}

	var (
		p   answer.Provider
		err error
	)
	switch c.Provider {
	case "gemini":
		if c.GeminiKey == "" {
			log.Warn("GEMINI_API_KEY not set, answering locally")
			return nil, nil
		}
		pc.APIKey = c.GeminiKey
		p, err = answer.NewGemini(ctx, pc)
	case "openai":
		if c.OpenAIKey == "" {
			log.Warn("OPENAI_API_KEY not set, answering locally")
			return nil, nil
		}
		pc.APIKey = c.OpenAIKey
		p, err = answer.NewOpenAI(pc)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return answer.NewBreaker(p, c.BreakerTimeout), nil
}

// Assistant is nil when no provider is configured.
func (c *Config) Assistant(ctx context.Context, httpClient *http.Client) (*answer.Assistant, error) {
	p, err := c.AnswerProvider(ctx, httpClient)
	if err != nil || p == nil {
		return nil, err
	}

	ac := answer.DefaultConfig()
	ac.Timeout = c.ProviderTimeout
	log.Info("Loaded answer provider", "provider", p.Name())
	return answer.NewAssistant(p, ac, answer.DefaultPages), nil
}

func (c *Config) SessionConfig() dialogue.Config {
	return dialogue.Config{
		Greeting:              c.Greeting,
		NavigateDelay:         c.NavigateDelay,
		ProviderNavigateDelay: c.ProviderNavigateDelay,
	}
}

func (c *Config) SpeechConfig() speech.Config {
	sc := speech.DefaultConfig()
	if c.Locale != "" {
		sc.Locale = c.Locale
	}
	return sc
}
