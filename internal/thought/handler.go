package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"voicethoughts/internal/identity"
	"voicethoughts/internal/thought/model"
	"voicethoughts/internal/thought/service"
	"voicethoughts/pkg/logger"
	"voicethoughts/pkg/response"
)

const maxBodyBytes = 1 << 20

type ThoughtHandler struct {
	Service *service.ThoughtService
}

func NewThoughtHandler(service *service.ThoughtService) *ThoughtHandler {
	return &ThoughtHandler{Service: service}
}

func (h *ThoughtHandler) ListThoughts(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	thoughts, err := h.Service.ListThoughts(r.Context(), id)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to list thoughts for user %s: %v", id.UserID, err)
		writeServiceError(w, err, "Failed to fetch thoughts")
		return
	}

	response.JSON(w, http.StatusOK, thoughts)
}

func (h *ThoughtHandler) CreateThought(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req model.CreateThoughtRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	// An empty body is treated like {} and fails on the missing content below.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	thought, err := h.Service.CreateThought(r.Context(), id, req.Title, req.Content)
	if err != nil {
		if !errors.Is(err, service.ErrInvalidInput) {
			logger.Sugar.Errorf("Handler: Failed to create thought for user %s: %v", id.UserID, err)
		}
		writeServiceError(w, err, "Failed to save thought")
		return
	}

	response.JSON(w, http.StatusCreated, thought)
}

// writeServiceError maps service errors to responses. Store error text stays
// in the logs; clients only get fallback.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		response.Error(w, http.StatusBadRequest, "No content provided")
	case errors.Is(err, service.ErrUnauthenticated):
		response.Error(w, http.StatusUnauthorized, "Authentication required")
	default:
		response.Error(w, http.StatusInternalServerError, fallback)
	}
}
