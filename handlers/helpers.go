package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Dosada05/arena-tournaments/brackets"
	"github.com/Dosada05/arena-tournaments/services"
	"github.com/Dosada05/arena-tournaments/tourney"
	"github.com/Dosada05/arena-tournaments/users"
)

type jsonResponse map[string]interface{}

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576 // 1MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case err.Error() == "http: request body too large":
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err)
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

func errorResponse(w http.ResponseWriter, r *http.Request, status int, message interface{}) {
	env := jsonResponse{"error": message}
	if err := writeJSON(w, status, env, nil); err != nil {
		slog.Error("writing error response failed", "error", err, "path", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("internal server error", "error", err, "path", r.URL.Path)
	message := "the server encountered a problem and could not process your request"
	errorResponse(w, r, http.StatusInternalServerError, message)
}

func badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func notFoundResponse(w http.ResponseWriter, r *http.Request) {
	message := "the requested resource could not be found"
	errorResponse(w, r, http.StatusNotFound, message)
}

func conflictResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusConflict, message)
}

func unauthorizedResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusUnauthorized, message)
}

func forbiddenResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusForbidden, message)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// mapEngineErrorToHTTP translates engine and service errors into HTTP
// responses.
func mapEngineErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tourney.ErrNoTournament),
		errors.Is(err, services.ErrNotFound),
		errors.Is(err, brackets.ErrUserNotAdded):
		notFoundResponse(w, r)

	case errors.Is(err, tourney.ErrTournamentExists),
		errors.Is(err, tourney.ErrTournamentFull),
		errors.Is(err, tourney.ErrAltUserAlreadyAdded),
		errors.Is(err, tourney.ErrAlreadyDisqualified),
		errors.Is(err, brackets.ErrUserAlreadyAdded),
		errors.Is(err, brackets.ErrMatchAlreadyPlayed):
		conflictResponse(w, r, err.Error())

	case errors.Is(err, tourney.ErrUserNotNamed),
		errors.Is(err, tourney.ErrAlreadyStarted),
		errors.Is(err, tourney.ErrNotStarted),
		errors.Is(err, tourney.ErrAlreadyEnded),
		errors.Is(err, tourney.ErrNotEnoughUsers),
		errors.Is(err, tourney.ErrNoChallenge),
		errors.Is(err, tourney.ErrNotChallenger),
		errors.Is(err, tourney.ErrNotChallenged),
		errors.Is(err, tourney.ErrInvalidAutoStartTimeout),
		errors.Is(err, tourney.ErrInvalidAutoDisqualifyTimeout),
		errors.Is(err, tourney.ErrAutoDisqualifyDisabled),
		errors.Is(err, services.ErrInvalidPage),
		errors.Is(err, brackets.ErrInvalidMatch),
		errors.Is(err, brackets.ErrBracketFrozen),
		errors.Is(err, brackets.ErrUnsupportedOutcome),
		errors.Is(err, users.ErrNameRequired):
		badRequestResponse(w, r, err)

	case errors.Is(err, users.ErrNameTaken):
		conflictResponse(w, r, err.Error())

	case errors.Is(err, services.ErrHistoryDisabled):
		forbiddenResponse(w, r, err.Error())

	default:
		serverErrorResponse(w, r, err)
	}
}
