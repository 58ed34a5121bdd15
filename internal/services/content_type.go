package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen matches mimetype's default read limit.
const sniffLen = 3072

const defaultContentType = "application/octet-stream"

// ContentTypeDetector decides the content type stored with an object. The
// client-declared part header is never trusted; the type comes from the
// leading bytes of the content, falling back to the filename extension.
type ContentTypeDetector struct{}

// NewContentTypeDetector creates a new content type detector
func NewContentTypeDetector() *ContentTypeDetector {
	return &ContentTypeDetector{}
}

// Detect sniffs content and returns its type together with a reader that
// still yields the full content. Seekable content is rewound to offset 0;
// anything else is re-assembled from the sniffed prefix.
func (d *ContentTypeDetector) Detect(content io.Reader, filename string) (string, io.Reader, error) {
	header := make([]byte, sniffLen)
	n, err := io.ReadFull(content, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, fmt.Errorf("error reading content: %w", err)
	}
	header = header[:n]

	contentType := mimetype.Detect(header).String()
	if contentType == defaultContentType {
		if byExt := d.DetectFromFilename(filename); byExt != defaultContentType {
			contentType = byExt
		}
	}

	if seeker, ok := content.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err == nil {
			return contentType, content, nil
		}
	}
	return contentType, io.MultiReader(bytes.NewReader(header), content), nil
}

// DetectFromFilename detects content type from filename extension
func (d *ContentTypeDetector) DetectFromFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return defaultContentType
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return defaultContentType
}
