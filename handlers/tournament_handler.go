package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Dosada05/arena-tournaments/middleware"
	"github.com/Dosada05/arena-tournaments/services"
	"github.com/Dosada05/arena-tournaments/tourney"
	"github.com/Dosada05/arena-tournaments/users"
)

type TournamentHandler struct {
	manager  *tourney.Manager
	registry *users.Registry
	archive  *services.ArchiveService // nil when persistence is disabled
}

func NewTournamentHandler(manager *tourney.Manager, registry *users.Registry, archive *services.ArchiveService) *TournamentHandler {
	return &TournamentHandler{
		manager:  manager,
		registry: registry,
		archive:  archive,
	}
}

func (h *TournamentHandler) currentUser(w http.ResponseWriter, r *http.Request) *users.User {
	identity, err := middleware.GetIdentityFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return nil
	}
	user := h.registry.GetExact(identity.UserID)
	if user == nil {
		unauthorizedResponse(w, r, "unknown account, request a new token")
		return nil
	}
	return user
}

func (h *TournamentHandler) tournament(w http.ResponseWriter, r *http.Request) *tourney.Tournament {
	t, err := h.manager.Get(chi.URLParam(r, "room"))
	if err != nil {
		mapEngineErrorToHTTP(w, r, err)
		return nil
	}
	return t
}

func (h *TournamentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Format         string `json:"format"`
		Generator      string `json:"generator"`
		PlayerCap      int    `json:"player_cap"`
		Rated          bool   `json:"rated"`
		AllowAlts      bool   `json:"allow_alts"`
		AutoStartOnCap bool   `json:"autostart_on_cap"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Format == "" {
		badRequestResponse(w, r, errors.New("format is required"))
		return
	}
	if input.PlayerCap < 0 {
		badRequestResponse(w, r, errors.New("player_cap must not be negative"))
		return
	}

	t, err := h.manager.Create(chi.URLParam(r, "room"), tourney.Settings{
		Format:       input.Format,
		PlayerCap:    input.PlayerCap,
		Rated:        input.Rated,
		AllowAlts:    input.AllowAlts,
		AutoStartCap: input.AutoStartOnCap,
	}, input.Generator)
	if err != nil {
		mapEngineErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{
		"room":      t.RoomID,
		"format":    t.Format,
		"generator": t.GeneratorName(),
	}
	if err := writeJSON(w, http.StatusCreated, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// List reports the rooms with an active tournament.
func (h *TournamentHandler) List(w http.ResponseWriter, r *http.Request) {
	response := jsonResponse{"rooms": h.manager.Rooms()}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *TournamentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(chi.URLParam(r, "room")); err != nil {
		mapEngineErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) SetType(w http.ResponseWriter, r *http.Request) {
	t := h.tournament(w, r)
	if t == nil {
		return
	}
	var input struct {
		Generator string `json:"generator"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := t.SetGenerator(input.Generator); err != nil {
		mapEngineErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) Start(w http.ResponseWriter, r *http.Request) {
	t := h.tournament(w, r)
	if t == nil {
		return
	}
	if err := t.Start(); err != nil {
		mapEngineErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) Join(w http.ResponseWriter, r *http.Request) {
	t := h.tournament(w, r)
	if t == nil {
		return
	}
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	if err := t.AddUser(user); err != nil {
		mapEngineErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) Leave(w http.ResponseWriter, r *http.Request) {
	t := h.tournament(w, r)
	if t == nil {
		return
	}
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	if err := t.RemoveUser(user); err != nil {
		mapEngineErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) Users(w http.ResponseWriter, r *http.Request) {
	t := h.tournament(w, r)
	if t == nil {
		return
	}
	response := jsonResponse{
		"room":  t.RoomID,
		"state": t.State(),
		"users": t.Users(),
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Update replays the full tournament state over the caller's websocket
// connections. Used after a reconnect.
func (h *TournamentHandler) Update(w http.ResponseWriter, r *http.Request) {
	t := h.tournament(w, r)
	if t == nil {
		return
	}
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	if err := t.Resync(user); err != nil {
		mapEngineErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	t := h.tournament(w, r)
	if t == nil {
		return
	}
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	var input struct {
		Opponent string `json:"opponent"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	opponent := h.registry.Get(input.Opponent)
	if opponent == nil {
		notFoundResponse(w, r)
		return
	}
	if err := t.Challenge(user, opponent); err != nil {
		mapEngineErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *TournamentHandler) CancelChallenge(w http.ResponseWriter, r *http.Request) {
	t := h.tournament(w, r)
	if t == nil {
		return
	}
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	if err := t.CancelChallenge(user); err != nil {
		mapEngineErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) AcceptChallenge(w http.ResponseWriter, r *http.Request) {
	t := h.tournament(w, r)
	if t == nil {
		return
	}
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	if err := t.AcceptChallenge(user); err != nil {
		mapEngineErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *TournamentHandler) Disqualify(w http.ResponseWriter, r *http.Request) {
	t := h.tournament(w, r)
	if t == nil {
		return
	}
	var input struct {
		Name   string  `json:"name"`
		Reason *string `json:"reason"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	target := h.registry.Get(input.Name)
	if target == nil {
		notFoundResponse(w, r)
		return
	}
	if err := t.Disqualify(target, input.Reason); err != nil {
		mapEngineErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) SetAutoStart(w http.ResponseWriter, r *http.Request) {
	t := h.tournament(w, r)
	if t == nil {
		return
	}
	var input struct {
		Seconds float64 `json:"seconds"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Seconds < 0 {
		badRequestResponse(w, r, errors.New("seconds must not be negative"))
		return
	}
	if err := t.SetAutoStartTimeout(time.Duration(input.Seconds * float64(time.Second))); err != nil {
		mapEngineErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) SetAutoDisqualify(w http.ResponseWriter, r *http.Request) {
	t := h.tournament(w, r)
	if t == nil {
		return
	}
	var input struct {
		Seconds float64 `json:"seconds"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Seconds < 0 {
		badRequestResponse(w, r, errors.New("seconds must not be negative"))
		return
	}
	if err := t.SetAutoDisqualifyTimeout(time.Duration(input.Seconds * float64(time.Second))); err != nil {
		mapEngineErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) RunAutoDisqualify(w http.ResponseWriter, r *http.Request) {
	t := h.tournament(w, r)
	if t == nil {
		return
	}
	if err := t.RunAutoDisqualify(); err != nil {
		mapEngineErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) SetScouting(w http.ResponseWriter, r *http.Request) {
	t := h.tournament(w, r)
	if t == nil {
		return
	}
	var input struct {
		Allowed bool `json:"allowed"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	t.SetScouting(input.Allowed)
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) SetModJoin(w http.ResponseWriter, r *http.Request) {
	t := h.tournament(w, r)
	if t == nil {
		return
	}
	var input struct {
		Allowed bool `json:"allowed"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	t.SetModJoin(input.Allowed)
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		mapEngineErrorToHTTP(w, r, services.ErrHistoryDisabled)
		return
	}
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	history, err := h.archive.History(r.Context(), chi.URLParam(r, "room"), limit, offset)
	if err != nil {
		mapEngineErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, history, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
