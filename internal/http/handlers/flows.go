package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/resaflow/platform/internal/flow"
	"github.com/resaflow/platform/pkg/logging"
)

// FlowHandler serves the flow authoring surface: upsert with lint gating,
// fetch, and a standalone lint endpoint.
type FlowHandler struct {
	store  *flow.Store
	logger *logging.Logger
}

func NewFlowHandler(store *flow.Store, logger *logging.Logger) *FlowHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FlowHandler{store: store, logger: logger}
}

type lintResponse struct {
	Issues []flow.Issue `json:"issues"`
}

// Upsert is PUT /accounts/{accountID}/flows/{flowID}. Lint errors reject
// the document; warnings are returned alongside the save.
func (h *FlowHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	flowID := chi.URLParam(r, "flowID")

	document, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	g, err := flow.Decode(accountID, document)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if g.ID != flowID {
		writeError(w, http.StatusBadRequest, "document id does not match URL")
		return
	}

	issues := flow.Lint(g)
	if flow.HasErrors(issues) {
		writeJSON(w, http.StatusUnprocessableEntity, lintResponse{Issues: issues})
		return
	}
	if err := h.store.Upsert(r.Context(), g); err != nil {
		h.logger.Error("flow upsert failed", "error", err, "flow_id", flowID)
		writeError(w, http.StatusInternalServerError, "failed to save flow")
		return
	}
	writeJSON(w, http.StatusOK, lintResponse{Issues: issues})
}

// Get is GET /accounts/{accountID}/flows/{flowID}, returning the authoring
// document.
func (h *FlowHandler) Get(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "flowID")
	g, err := h.store.Get(r.Context(), flowID)
	if err != nil {
		if errors.Is(err, flow.ErrNotFound) {
			writeError(w, http.StatusNotFound, "flow not found")
			return
		}
		h.logger.Error("flow fetch failed", "error", err, "flow_id", flowID)
		writeError(w, http.StatusInternalServerError, "failed to load flow")
		return
	}
	if g.AccountID != chi.URLParam(r, "accountID") {
		writeError(w, http.StatusNotFound, "flow not found")
		return
	}
	document, err := flow.Encode(g)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode flow")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(document)
}

// Lint is POST /accounts/{accountID}/flows/lint; it checks a document
// without saving it.
func (h *FlowHandler) Lint(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	document, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	g, err := flow.Decode(accountID, document)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, lintResponse{Issues: flow.Lint(g)})
}
