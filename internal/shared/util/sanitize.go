package util

import (
	"errors"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFileNameBytes bounds stored file names; longer names are cut before the
// extension.
const MaxFileNameBytes = 180

var errInvalidFileName = errors.New("invalid file name")

// SanitizeFileName reduces a client-supplied upload name to a single safe path
// element. Directory parts are dropped, control characters removed and runs
// of whitespace collapsed.
func SanitizeFileName(name string) (string, error) {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == ".." || base == "/" || strings.Contains(base, "..") {
		return "", errInvalidFileName
	}

	var b strings.Builder
	space := false
	for _, r := range base {
		switch {
		case unicode.IsSpace(r):
			if !space {
				b.WriteByte(' ')
			}
			space = true
			continue
		case r == utf8.RuneError || unicode.IsControl(r):
			continue
		}
		space = false
		b.WriteRune(r)
	}
	s := strings.TrimSpace(b.String())
	if s == "" || strings.Trim(s, ".") == "" {
		return "", errInvalidFileName
	}
	return truncateName(s), nil
}

func truncateName(s string) string {
	if len(s) <= MaxFileNameBytes {
		return s
	}
	ext := path.Ext(s)
	if len(ext) > 16 {
		ext = ""
	}
	stem := s[:len(s)-len(ext)]
	limit := MaxFileNameBytes - len(ext)
	for limit > 0 && !utf8.RuneStart(stem[limit]) {
		limit--
	}
	return stem[:limit] + ext
}
