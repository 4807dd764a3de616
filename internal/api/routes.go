package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Mount registers the ledger routes on r. Commands sit behind authn;
// queries are public, mirroring on-chain account visibility.
func (h *Handler) Mount(r chi.Router, authn func(http.Handler) http.Handler) {
	// Read-only queries.
	r.Get("/config", h.GetConfig)
	r.Get("/accounts/{owner}", h.GetAccount)
	r.Get("/accounts/{owner}/positions", h.ListPositions)
	r.Get("/accounts/{owner}/positions/{positionID}", h.GetPosition)

	// Commands.
	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Post("/config", h.InitConfig)
		r.Post("/accounts", h.CreateAccount)
		r.Post("/positions", h.Buy)
		r.Post("/positions/{positionID}/close", h.Close)
	})
}
