package handlers

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"

	"github.com/ahmad-alkadri/depot-upload/internal/services"
)

const (
	sessionName = "depot_session"
	formField   = "file"
)

//go:embed templates/index.html
var templateFS embed.FS

// NewSessionStore returns the signed cookie store that carries flash
// messages between the POST and the redirected GET.
func NewSessionStore(secretKey string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secretKey))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   3600,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// UploadHandler serves the upload form and receives uploads.
type UploadHandler struct {
	service        *services.UploadService
	sessions       sessions.Store
	maxUploadBytes int64
	logger         *slog.Logger
	page           *template.Template
}

type pageData struct {
	Successes   []string
	Errors      []string
	Allowed     []string
	MaxUploadMB int64
}

// NewUploadHandler creates the handler. maxUploadBytes bounds the whole
// request body.
func NewUploadHandler(
	service *services.UploadService,
	store sessions.Store,
	maxUploadBytes int64,
	logger *slog.Logger,
) (*UploadHandler, error) {
	page, err := template.New("index.html").
		Funcs(template.FuncMap{"join": strings.Join}).
		ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, err
	}
	return &UploadHandler{
		service:        service,
		sessions:       store,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
		page:           page,
	}, nil
}

// Index renders the form and consumes pending flash messages.
func (h *UploadHandler) Index(w http.ResponseWriter, r *http.Request) {
	session := h.session(r)
	data := pageData{
		Successes:   flashStrings(session.Flashes(flashSuccess)),
		Errors:      flashStrings(session.Flashes(flashError)),
		Allowed:     services.AllowedExtensions(),
		MaxUploadMB: h.maxUploadBytes >> 20,
	}
	if len(data.Successes)+len(data.Errors) > 0 {
		if err := session.Save(r, w); err != nil {
			h.logger.Error("failed to save session", "error", err)
		}
	}

	var buf bytes.Buffer
	if err := h.page.Execute(&buf, data); err != nil {
		h.logger.Error("failed to render page", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

// Upload receives one file from the form and redirects back to the form
// with the outcome as a flash message.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	req, err := h.readUpload(w, r)
	if err == nil {
		_, err = h.service.Upload(r.Context(), req)
	}

	kind, message := flashFor(err)
	session := h.session(r)
	session.AddFlash(message, kind)
	if err := session.Save(r, w); err != nil {
		h.logger.Error("failed to save session", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// readUpload extracts the first file part named "file" from the request.
// Only parts whose Content-Disposition carries a filename parameter are
// file parts; a plain field named "file" is skipped. A missing or
// unreadable part yields a request without PartPresent and the service
// decides the rejection. Only an oversized body is rejected here.
func (h *UploadHandler) readUpload(w http.ResponseWriter, r *http.Request) (services.UploadRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		h.logger.Debug("request is not a multipart form", "error", err)
		return services.UploadRequest{}, nil
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return services.UploadRequest{}, nil
		}
		if err != nil {
			return services.UploadRequest{}, h.bodyError(err)
		}
		if part.FormName() != formField || !isFilePart(part) {
			continue
		}

		// The body is bounded by maxUploadBytes, so the part fits in memory.
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, part); err != nil {
			return services.UploadRequest{}, h.bodyError(err)
		}
		return services.UploadRequest{
			PartPresent: true,
			Filename:    part.FileName(),
			Content:     bytes.NewReader(buf.Bytes()),
			Size:        int64(buf.Len()),
		}, nil
	}
}

// bodyError turns a failure while reading the multipart body into a
// rejection when the body was too large, and into "no file part" otherwise.
func (h *UploadHandler) bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return h.service.Reject(services.ReasonTooLarge, "")
	}
	h.logger.Debug("unreadable multipart body", "error", err)
	return nil
}

// isFilePart reports whether the part's Content-Disposition has a filename
// parameter, empty or not. An empty filename is what browsers send when no
// file was selected.
func isFilePart(part *multipart.Part) bool {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return false
	}
	_, ok := params["filename"]
	return ok
}

// session returns the request's session. An unreadable cookie (for example
// one signed with a rotated key) is replaced by a fresh session.
func (h *UploadHandler) session(r *http.Request) *sessions.Session {
	session, err := h.sessions.Get(r, sessionName)
	if err != nil {
		h.logger.Debug("discarding unreadable session", "error", err)
	}
	return session
}
