package services

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxKeyLength bounds sanitized keys; most object stores cap keys at 1024
// bytes and common filesystems at 255.
const maxKeyLength = 255

// allowedExtensions is the upload allow-list, lower case and without dots.
var allowedExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
	"pdf":  {},
	"docx": {},
	"txt":  {},
	"json": {},
}

var (
	unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

	// asciiFold decomposes accented characters and drops whatever is left
	// outside ASCII, so "résumé" becomes "resume".
	asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
)

// AllowedExtensions returns the allow-list in sorted order.
func AllowedExtensions() []string {
	return []string{"docx", "gif", "jpeg", "jpg", "json", "pdf", "png", "txt"}
}

// IsAllowed reports whether the extension after the last dot of filename,
// compared case-insensitively, is on the allow-list.
func IsAllowed(filename string) bool {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return false
	}
	_, ok := allowedExtensions[strings.ToLower(filename[i+1:])]
	return ok
}

// Sanitize turns an untrusted filename into a storage key. Only the final
// path segment survives, whitespace becomes underscores, anything outside
// [A-Za-z0-9_.-] is removed and leading dots, dashes and underscores are
// trimmed. The result may be empty. Sanitize is idempotent.
func Sanitize(filename string) string {
	s, _, err := transform.String(asciiFold, filename)
	if err != nil {
		return ""
	}

	s = strings.ReplaceAll(s, `\`, "/")
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}

	s = strings.Join(strings.Fields(s), "_")
	s = unsafeKeyChars.ReplaceAllString(s, "")
	s = strings.TrimLeft(s, "._-")
	s = strings.TrimRight(s, "._")

	if len(s) > maxKeyLength {
		ext := path.Ext(s)
		if len(ext) >= maxKeyLength {
			ext = ""
		}
		s = strings.TrimRight(s[:maxKeyLength-len(ext)], "._") + ext
	}
	return s
}
