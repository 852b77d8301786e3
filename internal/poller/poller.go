// Package poller is the foreground producer: it samples the configured
// position source on a fixed interval and feeds raw positions into the
// coordinator's event queue. The OS geofence callback path does not go
// through here; it posts events directly.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"onsite-tracker-backend/config"
	"onsite-tracker-backend/internal/coordinator"
	"onsite-tracker-backend/internal/geo"
)

// Service polls the position source in a loop.
type Service struct {
	cfg    *config.Config
	coord  *coordinator.Coordinator
	client *http.Client
}

// NewService creates and initializes a new poller service.
func NewService(cfg *config.Config, coord *coordinator.Coordinator) *Service {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.Tracker.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.Tracker.HTTPProxy)
		if err != nil {
			log.Printf("Warning: invalid proxy URL %q: %v. Poller will not use a proxy.", cfg.Tracker.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Service{
		cfg:   cfg,
		coord: coord,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
	}
}

// Run starts the polling loop.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Tracker.PollEnabled || s.cfg.Tracker.PositionSourceURL == "" {
		log.Println("Position poller is disabled. Not starting.")
		return
	}
	log.Println("Starting position poller...")

	s.PollOnce(ctx)

	timer := time.NewTimer(s.cfg.Tracker.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Position poller shutting down.")
			return
		case <-timer.C:
			s.PollOnce(ctx)
			timer.Reset(s.cfg.Tracker.PollInterval)
		}
	}
}

// PollOnce samples the position source once and enqueues the result.
// A failed sample is logged and skipped; geofence state is untouched until
// the next successful one.
func (s *Service) PollOnce(ctx context.Context) {
	pos, err := s.fetchPosition(ctx)
	if err != nil {
		log.Printf("Error fetching position: %v", err)
		return
	}

	s.coord.Push(coordinator.Event{Type: coordinator.EventRawPosition, Position: pos})
}

// sourceResponse mirrors the position source's getCurrentPosition shape.
type sourceResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp string  `json:"timestamp"`
}

func (s *Service) fetchPosition(ctx context.Context) (*geo.Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Tracker.PositionSourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range s.cfg.Tracker.PositionSourceHeaders {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var raw sourceResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal position response: %w", err)
	}

	pos := &geo.Position{
		Point:    geo.Point{Latitude: raw.Latitude, Longitude: raw.Longitude},
		Accuracy: raw.Accuracy,
	}
	if raw.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, raw.Timestamp)
		if err != nil {
			log.Printf("Warning: could not parse position timestamp %q: %v", raw.Timestamp, err)
		} else {
			pos.Timestamp = ts
		}
	}
	return pos, nil
}
