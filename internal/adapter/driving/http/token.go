package http

import (
	"errors"
	"net/http"

	"github.com/caic-labs/caic/internal/adapter/driven/media/zego"
	"github.com/rs/zerolog/log"
)

type roomTokenRequest struct {
	UserID string `json:"userID"`
	RoomID string `json:"roomID"`
}

type roomTokenResponse struct {
	Success  bool   `json:"success"`
	KitToken string `json:"kitToken,omitempty"`
	Message  string `json:"message,omitempty"`
}

// handleRoomToken issues a media-room credential for the client SDK.
func (h *Handler) handleRoomToken(w http.ResponseWriter, r *http.Request) {
	var req roomTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" || req.RoomID == "" {
		respondJSON(w, http.StatusBadRequest, roomTokenResponse{Message: "userID and roomID are required"})
		return
	}

	token, err := h.tokens.RoomToken(req.UserID, req.RoomID, h.tokenTTL)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, zego.ErrMissingUser) || errors.Is(err, zego.ErrMissingRoom) {
			status = http.StatusBadRequest
		}
		log.Error().Err(err).Msg("Room token generation failed")
		respondJSON(w, status, roomTokenResponse{Message: "could not generate room token"})
		return
	}
	respondJSON(w, http.StatusOK, roomTokenResponse{Success: true, KitToken: token})
}
