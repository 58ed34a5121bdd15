package handlers

import (
	"errors"

	"github.com/ahmad-alkadri/depot-upload/internal/services"
)

const (
	flashSuccess = "success"
	flashError   = "error"

	successMessage      = "File uploaded successfully"
	storageErrorMessage = "Storage error, please try again later"
)

// flashFor maps an upload outcome to the flash kind and the message shown to
// the user. Storage causes never reach the page.
func flashFor(err error) (kind, message string) {
	if err == nil {
		return flashSuccess, successMessage
	}
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		return flashError, string(verr.Reason)
	}
	return flashError, storageErrorMessage
}

func flashStrings(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
