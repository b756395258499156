package rail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidPNR   = errors.New("please enter a valid 10-digit PNR number")
	ErrInvalidTrain = errors.New("please enter a valid 5-digit train number")
)

type Config struct {
	PNRBaseURL  string
	PNRHost     string
	RapidAPIKey string

	StatusBaseURL string
	StatusAPIKey  string
}

func DefaultConfig() Config {
	return Config{
		PNRBaseURL:    "https://irctc1.p.rapidapi.com",
		PNRHost:       "irctc1.p.rapidapi.com",
		StatusBaseURL: "http://indianrailapi.com/api/v2",
	}
}

// Client looks up PNR and live train status from hosted rail APIs.
type Client struct {
	cfg      Config
	http     *http.Client
	validate *validator.Validate
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{cfg: cfg, http: httpClient, validate: validator.New()}
}

type pnrQuery struct {
	PNR string `validate:"required,len=10,numeric"`
}

type statusQuery struct {
	Train string `validate:"required,len=5,numeric"`
}

// ValidatePNR rejects anything but a 10-digit PNR.
func (c *Client) ValidatePNR(pnr string) error {
	if err := c.validate.Struct(pnrQuery{PNR: pnr}); err != nil {
		return ErrInvalidPNR
	}
	return nil
}

// PNRStatus fetches the booking status. The upstream document is returned
// as-is.
func (c *Client) PNRStatus(ctx context.Context, pnr string) (json.RawMessage, error) {
	if err := c.ValidatePNR(pnr); err != nil {
		return nil, err
	}

	u := c.cfg.PNRBaseURL + "/api/v3/getPNRStatusDetail?pnrNumber=" + url.QueryEscape(pnr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-rapidapi-key", c.cfg.RapidAPIKey)
	req.Header.Set("x-rapidapi-host", c.cfg.PNRHost)

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("pnr status: %w", err)
	}
	if !json.Valid(body) {
		return nil, errors.New("pnr status: malformed response")
	}
	return json.RawMessage(body), nil
}

// StationStatus is one upcoming stop of a running train.
type StationStatus struct {
	StationName      string `json:"station_name"`
	ScheduledArrival string `json:"scheduled_arrival"`
	ExpectedArrival  string `json:"expected_arrival"`
	DelayMinutes     int    `json:"delay_minutes"`
}

// LiveStatus is the current position of a train.
type LiveStatus struct {
	TrainNumber        string          `json:"train_number"`
	TrainName          string          `json:"train_name"`
	Status             string          `json:"status"`
	CurrentStationName string          `json:"current_station_name"`
	LastUpdated        string          `json:"last_updated"`
	UpcomingStations   []StationStatus `json:"upcoming_stations"`
}

type liveStatusResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Train   struct {
		Number string `json:"number"`
		Name   string `json:"name"`
	} `json:"train"`
	Position       string `json:"position"`
	CurrentStation struct {
		Name string `json:"name"`
	} `json:"current_station"`
	LastUpdate struct {
		Time string `json:"time"`
	} `json:"last_update"`
	UpcomingStations []struct {
		Name     string `json:"name"`
		SchDep   string `json:"schdep"`
		ActDep   string `json:"actdep"`
		DelayMin int    `json:"delaymin"`
	} `json:"upcoming_stations"`
}

// LiveStatus fetches the running status of a train on date.
func (c *Client) LiveStatus(ctx context.Context, train string, date time.Time) (*LiveStatus, error) {
	if err := c.validate.Struct(statusQuery{Train: train}); err != nil {
		return nil, ErrInvalidTrain
	}

	u := fmt.Sprintf("%s/livetrainstatus/apikey/%s/trainnumber/%s/date/%s/",
		c.cfg.StatusBaseURL, url.PathEscape(c.cfg.StatusAPIKey), train, date.Format("20060102"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("live status: %w", err)
	}

	var raw liveStatusResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal live status: %w", err)
	}
	if !raw.Status {
		msg := raw.Message
		if msg == "" {
			msg = "unable to fetch train status"
		}
		return nil, errors.New(msg)
	}

	out := &LiveStatus{
		TrainNumber:        raw.Train.Number,
		TrainName:          raw.Train.Name,
		Status:             raw.Position,
		CurrentStationName: raw.CurrentStation.Name,
		LastUpdated:        raw.LastUpdate.Time,
	}
	for _, s := range raw.UpcomingStations {
		expected := s.ActDep
		if expected == "" {
			expected = s.SchDep
		}
		out.UpcomingStations = append(out.UpcomingStations, StationStatus{
			StationName:      s.Name,
			ScheduledArrival: s.SchDep,
			ExpectedArrival:  expected,
			DelayMinutes:     s.DelayMin,
		})
	}
	return out, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		log.Warn("Rail API error", "url", req.URL.Redacted(), "status", resp.StatusCode)
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return body, nil
}
