package server

import "strings"

const (
	maxStemLength      = 100
	maxExtensionLength = 10
	defaultExtension   = ".bin"
	defaultStem        = "file"
)

// SanitizeFilename reduces an uploader-supplied name to a safe basename.
// Directory parts are dropped, anything outside [A-Za-z0-9._-] becomes an
// underscore, leading dots are removed and the stem is capped. The
// extension is kept only when it is short and non-empty, otherwise ".bin".
func SanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		}
		return '_'
	}, name)

	name = strings.TrimLeft(name, ".")

	stem, ext := name, ""
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		stem, ext = name[:i], name[i+1:]
	}

	stem = strings.TrimRight(stem, ".")
	if stem == "" {
		stem = defaultStem
	}
	if len(stem) > maxStemLength {
		stem = stem[:maxStemLength]
	}

	if ext == "" || len(ext) > maxExtensionLength {
		return stem + defaultExtension
	}

	return stem + "." + ext
}
