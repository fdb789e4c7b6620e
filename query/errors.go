package query

import (
	"net/http"

	"github.com/goliatone/go-changelog-hooks/core"
	goerrors "github.com/goliatone/go-errors"
)

func queryDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorCodeInternal)
}

func queryValidationError(field string, message string) error {
	return goerrors.NewValidation("query: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorCodeBadInput).
		WithSeverity(goerrors.SeverityError)
}

func queryNotFoundError(key core.EventKey) error {
	return goerrors.New("query: processed event not found", goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode("CHANGELOG_EVENT_NOT_FOUND").
		WithMetadata(map[string]any{"event_key": key.String()})
}
