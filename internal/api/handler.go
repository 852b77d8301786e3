package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"onsite-tracker-backend/internal/coordinator"
	"onsite-tracker-backend/internal/ledger"
	"onsite-tracker-backend/internal/registry"
	"onsite-tracker-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	registry *registry.Registry
	ledger   *ledger.Ledger
	coord    *coordinator.Coordinator
	webpush  *webpush.Options
	location *time.Location
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, reg *registry.Registry, led *ledger.Ledger, coord *coordinator.Coordinator, webpushOptions *webpush.Options, location *time.Location) *Handler {
	if location == nil {
		location = time.UTC
	}
	return &Handler{
		store:    s,
		registry: reg,
		ledger:   led,
		coord:    coord,
		webpush:  webpushOptions,
		location: location,
	}
}
