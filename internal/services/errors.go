package services

import (
	"fmt"
	"strings"
)

// Reason is the user-facing explanation attached to a rejected upload.
type Reason string

const (
	ReasonNoFilePart      Reason = "No file part"
	ReasonNoSelectedFile  Reason = "No selected file"
	ReasonTypeNotAllowed  Reason = "File type not allowed"
	ReasonInvalidFilename Reason = "Invalid filename"
	ReasonTooLarge        Reason = "File too large"
)

// Label is the metric label for the reason, e.g. "no_file_part".
func (r Reason) Label() string {
	return strings.ReplaceAll(strings.ToLower(string(r)), " ", "_")
}

// ValidationError rejects a request before anything reaches storage. The
// user may retry with a different file.
type ValidationError struct {
	Reason   Reason
	Filename string
}

func (e *ValidationError) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("upload rejected: %s: %q", e.Reason, e.Filename)
	}
	return fmt.Sprintf("upload rejected: %s", e.Reason)
}

// StoreError reports that the object store did not acknowledge the write.
type StoreError struct {
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to store %s: %v", e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
