package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Dosada05/arena-tournaments/battles"
	"github.com/Dosada05/arena-tournaments/middleware"
	"github.com/Dosada05/arena-tournaments/users"
)

type BattleHandler struct {
	battles  battles.Service
	registry *users.Registry
}

func NewBattleHandler(battleSvc battles.Service, registry *users.Registry) *BattleHandler {
	return &BattleHandler{battles: battleSvc, registry: registry}
}

// Result reports a finished battle. Only a participant or a moderator may
// report; an empty winner records a draw.
func (h *BattleHandler) Result(w http.ResponseWriter, r *http.Request) {
	room, ok := h.battles.Get(chi.URLParam(r, "battleID"))
	if !ok {
		notFoundResponse(w, r)
		return
	}

	identity, err := middleware.GetIdentityFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	reporter := h.registry.GetExact(identity.UserID)
	if reporter == nil {
		unauthorizedResponse(w, r, "unknown account, request a new token")
		return
	}
	if identity.Role != middleware.RoleMod && reporter != room.P1 && reporter != room.P2 {
		forbiddenResponse(w, r, "only battle participants may report the result")
		return
	}

	var input struct {
		Winner string `json:"winner"`
		Score  []int  `json:"score"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var winner *users.User
	if input.Winner != "" {
		winner = h.registry.Get(input.Winner)
		if winner == nil {
			notFoundResponse(w, r)
			return
		}
	}

	if err := room.Finish(winner, input.Score); err != nil {
		switch {
		case errors.Is(err, battles.ErrRoomFinished):
			conflictResponse(w, r, err.Error())
		case errors.Is(err, battles.ErrNotParticipant):
			badRequestResponse(w, r, err)
		default:
			serverErrorResponse(w, r, err)
		}
		return
	}
	h.battles.Remove(room.ID)
	w.WriteHeader(http.StatusNoContent)
}
