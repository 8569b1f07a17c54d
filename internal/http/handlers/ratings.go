package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/resaflow/platform/internal/tenancy"
	"github.com/resaflow/platform/pkg/logging"
)

// RatingRecorder matches a submitted rating against the guest's most recent
// review conversation.
type RatingRecorder interface {
	RecordRating(ctx context.Context, accountID, contactID string, rating int) error
}

// ReviewRatingHandler accepts rating submissions from the messaging channel.
type ReviewRatingHandler struct {
	recorder RatingRecorder
	logger   *logging.Logger
}

func NewReviewRatingHandler(recorder RatingRecorder, logger *logging.Logger) *ReviewRatingHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReviewRatingHandler{recorder: recorder, logger: logger}
}

type ratingRequest struct {
	AccountID string `json:"account_id"`
	SenderID  string `json:"sender_id"`
	Rating    int    `json:"rating"`
}

// Handle records a guest rating. POST /webhooks/review-rating.
func (h *ReviewRatingHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AccountID == "" || req.SenderID == "" {
		writeError(w, http.StatusBadRequest, "account_id and sender_id are required")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	ctx := tenancy.WithAccountID(r.Context(), req.AccountID)
	if err := h.recorder.RecordRating(ctx, req.AccountID, req.SenderID, req.Rating); err != nil {
		h.logger.Error("failed to record rating",
			"account_id", req.AccountID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "failed to record rating")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
