package answer

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"
	"time"
)

// Page describes an application page offered to the model as context.
type Page struct {
	Path        string
	Description string
}

// DefaultPages lists the pages of the web application.
var DefaultPages = []Page{
	{"/", "Home: general information and upcoming trains"},
	{"/map", "Train map: live train locations and routes"},
	{"/pnr", "PNR status: check a booking by its 10-digit PNR"},
	{"/booking/train", "Train booking: book train tickets"},
	{"/booking/transport", "Transport booking: cabs and local transport"},
	{"/route-planner", "Route planner: plan a journey"},
	{"/assistant", "Voice assistant"},
	{"/profile", "Profile: account and journey history"},
	{"/login", "Login"},
	{"/settings", "Settings: user preferences"},
}

const assistantPrompt = `You are Sahyatri's train travel assistant for an Indian Railways companion website.
Provide helpful, concise information about train travel, stations and the website.

The website has these pages:
%s

Answer in a friendly, informative way. If the question is not related to train travel,
stations, navigation or the website, politely redirect the user to those topics.
Keep your answer under 4 sentences unless complex instructions are needed.

Important: do NOT tell the user how to navigate to a page and do NOT emit navigation
commands. Navigation is handled separately.`

const stationPrompt = `Provide detailed information about %s railway station in India.
Include platforms, amenities, nearby landmarks and any special features of the station.
Focus only on factual information.`

const directionsPrompt = `Provide step-by-step directions for walking from %s to %s within an Indian railway station.
Include platform information, amenities along the way and approximate walking time. Be clear and concise.`

type Config struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Temperature: 0.7,
		MaxTokens:   800,
		Timeout:     20 * time.Second,
	}
}

// Assistant turns user questions into provider requests.
type Assistant struct {
	provider Provider
	cfg      Config
	system   string
}

func NewAssistant(provider Provider, cfg Config, pages []Page) *Assistant {
	var b strings.Builder
	for _, p := range pages {
		fmt.Fprintf(&b, "- %s (%s)\n", p.Description, p.Path)
	}
	return &Assistant{
		provider: provider,
		cfg:      cfg,
		system:   fmt.Sprintf(assistantPrompt, strings.TrimRight(b.String(), "\n")),
	}
}

// SystemPrompt returns the instructions sent with every question.
func (a *Assistant) SystemPrompt() string { return a.system }

// Answer asks the provider a free-form question. The raw response may carry
// a navigation marker; callers strip it.
func (a *Assistant) Answer(ctx context.Context, question string) (string, error) {
	return a.ask(ctx, a.system, question)
}

// StationInfo describes a railway station.
func (a *Assistant) StationInfo(ctx context.Context, station string) (string, error) {
	return a.ask(ctx, a.system, fmt.Sprintf(stationPrompt, station))
}

// Directions gives walking directions inside a station.
func (a *Assistant) Directions(ctx context.Context, from, to string) (string, error) {
	return a.ask(ctx, a.system, fmt.Sprintf(directionsPrompt, from, to))
}

func (a *Assistant) ask(ctx context.Context, system, prompt string) (string, error) {
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := a.provider.Complete(ctx, Request{
		System:      system,
		Prompt:      prompt,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", a.provider.Name(), err)
	}

	log.Debug("Provider answered", "provider", a.provider.Name(), "took", time.Since(start))
	return text, nil
}
