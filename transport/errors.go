package transport

import (
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-changelog-hooks/core"
)

// failure builds the envelope returned for every transport error. The text
// code follows the category so callers can map it without string checks.
func failure(cause error, category goerrors.Category, status int, message string, metadata map[string]any) error {
	var err *goerrors.Error
	if cause != nil {
		err = goerrors.Wrap(cause, category, message)
	} else {
		err = goerrors.New(message, category)
	}
	err = err.WithCode(status).WithTextCode(textCode(category))
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func textCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return core.ErrorCodeBadInput
	case goerrors.CategoryExternal:
		return core.ErrorCodeExternalFailure
	default:
		return core.ErrorCodeInternal
	}
}
