package handlers

import (
	"context"
	"net/http"

	"github.com/intraline/kbcore/internal/api"
	"github.com/intraline/kbcore/internal/domain"
)

type AdminService interface {
	Reconcile(ctx context.Context) (int, error)
	CheckDrift(ctx context.Context) ([]*domain.DriftError, error)
}

type AdminHandler struct {
	svc AdminService
}

func NewAdminHandler(svc AdminService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

type ReconcileResponse struct {
	Registered int `json:"registered"`
}

// Reconcile rebuilds the metadata registry from the vector store.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	registered, err := h.svc.Reconcile(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ReconcileResponse{Registered: registered})
}

type DriftEntry struct {
	Source        string `json:"source"`
	RegistryCount int    `json:"registry_count"`
	StoreCount    int    `json:"store_count"`
}

type DriftResponse struct {
	Drift []*DriftEntry `json:"drift"`
}

// Drift reports sources whose registry chunk count disagrees with the
// vector store. Read-only; repair goes through Reconcile.
func (h *AdminHandler) Drift(w http.ResponseWriter, r *http.Request) {
	drift, err := h.svc.CheckDrift(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	entries := make([]*DriftEntry, len(drift))
	for i, d := range drift {
		entries[i] = &DriftEntry{
			Source:        d.Source,
			RegistryCount: d.RegistryCount,
			StoreCount:    d.StoreCount,
		}
	}

	api.Success(w, http.StatusOK, DriftResponse{Drift: entries})
}
