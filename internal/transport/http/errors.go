package http

import (
	"errors"
	"net/http"

	"trivia-quiz-service/internal/domain"
)

// classify maps an error to an HTTP status and a stable code shared by REST and websocket replies.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrPlayerNotFound),
		errors.Is(err, domain.ErrCategoryNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidUsername),
		errors.Is(err, domain.ErrInvalidQuestion),
		errors.Is(err, domain.ErrInvalidCategory):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrUsernameTaken):
		return http.StatusConflict, "username_taken"
	case errors.Is(err, domain.ErrCategoryExists):
		return http.StatusConflict, "category_exists"
	case errors.Is(err, domain.ErrActionInFlight):
		return http.StatusConflict, "action_in_flight"
	case errors.Is(err, domain.ErrInvalidPhase):
		return http.StatusConflict, "invalid_phase"
	case errors.Is(err, domain.ErrDataIntegrity):
		return http.StatusConflict, "data_integrity"
	case errors.Is(err, domain.ErrTransient):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
