package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ahmad-alkadri/depot-upload/internal/storage"
)

// State is a step of the upload flow. Every step is a gate: failing it
// moves the upload to StateRejected.
type State int

const (
	StateAwaitingFile State = iota
	StatePartPresent
	StateFilenamePresent
	StateExtensionAllowed
	StateSanitized
	StateStored
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateAwaitingFile:
		return "awaiting_file"
	case StatePartPresent:
		return "part_present"
	case StateFilenamePresent:
		return "filename_present"
	case StateExtensionAllowed:
		return "extension_allowed"
	case StateSanitized:
		return "sanitized"
	case StateStored:
		return "stored"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// UploadRequest is one file received from a client.
type UploadRequest struct {
	// PartPresent is false when the request carried no file part at all.
	PartPresent bool
	// Filename is the client-declared name; untrusted.
	Filename string
	Content  io.Reader
	Size     int64
}

// UploadResult describes a stored object.
type UploadResult struct {
	Key         string
	ContentType string
	Size        int64
}

// Recorder observes upload outcomes. Outcome is "stored", "storage_error"
// or a Reason label.
type Recorder interface {
	ObserveUpload(outcome string, duration time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ObserveUpload(string, time.Duration) {}

// UploadService validates uploads and hands accepted ones to the object
// store. It holds no per-request state and is safe for concurrent use.
type UploadService struct {
	store        storage.ObjectStore
	detector     *ContentTypeDetector
	storeTimeout time.Duration
	logger       *slog.Logger
	recorder     Recorder
}

// NewUploadService creates an upload service with all dependencies.
// recorder may be nil.
func NewUploadService(
	store storage.ObjectStore,
	detector *ContentTypeDetector,
	storeTimeout time.Duration,
	logger *slog.Logger,
	recorder Recorder,
) *UploadService {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &UploadService{
		store:        store,
		detector:     detector,
		storeTimeout: storeTimeout,
		logger:       logger,
		recorder:     recorder,
	}
}

// Upload runs req through the validation gates and stores it. It returns a
// *ValidationError or a *StoreError on failure.
func (s *UploadService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	start := time.Now()
	state := StateAwaitingFile

	if !req.PartPresent || req.Content == nil {
		return nil, s.reject(state, ReasonNoFilePart, "", start)
	}
	state = StatePartPresent

	if req.Filename == "" {
		return nil, s.reject(state, ReasonNoSelectedFile, "", start)
	}
	state = StateFilenamePresent

	if !IsAllowed(req.Filename) {
		return nil, s.reject(state, ReasonTypeNotAllowed, req.Filename, start)
	}
	state = StateExtensionAllowed

	key := Sanitize(req.Filename)
	if key == "" || !IsAllowed(key) {
		return nil, s.reject(state, ReasonInvalidFilename, req.Filename, start)
	}
	state = StateSanitized

	contentType, content, err := s.detector.Detect(req.Content, key)
	if err != nil {
		return nil, s.storeFailed(key, err, start)
	}

	if err := s.storeObject(ctx, key, content, req.Size, contentType); err != nil {
		return nil, s.storeFailed(key, err, start)
	}
	state = StateStored

	s.recorder.ObserveUpload(state.String(), time.Since(start))
	s.logger.Info("file uploaded", "key", key, "size", req.Size, "content_type", contentType)
	return &UploadResult{Key: key, ContentType: contentType, Size: req.Size}, nil
}

// Reject records a rejection decided outside Upload, such as an oversized
// request body, and returns the matching *ValidationError.
func (s *UploadService) Reject(reason Reason, filename string) error {
	return s.reject(StateAwaitingFile, reason, filename, time.Now())
}

func (s *UploadService) reject(state State, reason Reason, filename string, start time.Time) error {
	s.recorder.ObserveUpload(reason.Label(), time.Since(start))
	s.logger.Warn("upload rejected", "reason", string(reason), "state", state.String(), "filename", filename)
	return &ValidationError{Reason: reason, Filename: filename}
}

func (s *UploadService) storeFailed(key string, err error, start time.Time) error {
	s.recorder.ObserveUpload("storage_error", time.Since(start))
	s.logger.Error("upload failed", "key", key, "error", err)
	return &StoreError{Key: key, Err: err}
}

// storeObject bounds the store call by storeTimeout and converts panics
// from the storage client into errors.
func (s *UploadService) storeObject(ctx context.Context, key string, content io.Reader, size int64, contentType string) (err error) {
	if s.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in object store: %v", r)
		}
	}()

	return s.store.Store(ctx, key, content, size, contentType)
}
