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

	"github.com/Dosada05/bracket-progression/middleware"
	"github.com/Dosada05/bracket-progression/models"
	"github.com/Dosada05/bracket-progression/services"
	"github.com/go-chi/chi/v5"
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
		var maxBytesError *http.MaxBytesError

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
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err) // ошибка программиста: передан не указатель
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
	writeEnvelope(w, r, status, jsonResponse{"error": message})
}

func writeEnvelope(w http.ResponseWriter, r *http.Request, status int, env jsonResponse) {
	if err := writeJSON(w, status, env, nil); err != nil {
		slog.Default().ErrorContext(r.Context(), "failed to write JSON response", slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	serverErrorWithBody(w, r, err, nil)
}

// serverErrorWithBody не раскрывает текст ошибки клиенту, но сохраняет extra (например score_saved).
func serverErrorWithBody(w http.ResponseWriter, r *http.Request, err error, extra jsonResponse) {
	slog.Default().ErrorContext(r.Context(), "internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	env := jsonResponse{
		"error": "the server encountered a problem and could not process your request",
		"code":  services.CodeInternalError,
	}
	for k, v := range extra {
		env[k] = v
	}
	writeEnvelope(w, r, http.StatusInternalServerError, env)
}

func badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	writeEnvelope(w, r, http.StatusBadRequest, jsonResponse{"error": err.Error(), "code": services.CodeInvalidInput})
}

func unauthorizedResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusUnauthorized, message)
}

// mapServiceErrorToHTTP преобразует ошибки сервисного слоя в HTTP-ответы.
// В тело всегда кладётся машинный код из services.ResultCode.
func mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	mapServiceErrorWithBody(w, r, err, nil)
}

func mapServiceErrorWithBody(w http.ResponseWriter, r *http.Request, err error, extra jsonResponse) {
	code := services.ResultCode(err)

	var status int
	switch code {
	case services.CodeMatchNotFound, services.CodeNotFound:
		status = http.StatusNotFound
	case services.CodeInvalidScore:
		status = http.StatusUnprocessableEntity
	case services.CodeInvalidInput:
		status = http.StatusBadRequest
	case services.CodeTournamentFrozen, services.CodeAdvancementConflict, services.CodeMatchAlreadyCompleted:
		status = http.StatusConflict
	case services.CodeForbidden:
		status = http.StatusForbidden
	default:
		if errors.Is(err, services.ErrAdvancementTimeout) {
			status = http.StatusGatewayTimeout
			break
		}
		serverErrorWithBody(w, r, err, extra)
		return
	}

	env := jsonResponse{"error": err.Error(), "code": code}
	for k, v := range extra {
		env[k] = v
	}
	writeEnvelope(w, r, status, env)
}

func getIDFromURL(r *http.Request, paramName string) (int, error) {
	idStr := chi.URLParam(r, paramName)
	if idStr == "" {
		return 0, fmt.Errorf("missing %s in URL path", paramName)
	}

	id, err := strconv.Atoi(idStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %q", paramName, idStr)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid %s value: %d", paramName, id)
	}
	return id, nil
}

// actorFromRequest возвращает актора или пишет 401.
func actorFromRequest(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, err := middleware.ActorFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return models.Actor{}, false
	}
	return actor, true
}
