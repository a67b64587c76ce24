package title_generation

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// reservedTitleChars cannot appear in a base name on at least one common
// filesystem, or would move the file to another directory.
const reservedTitleChars = `\/:*?"<>|`

// SanitizeTitle makes a generated title safe to use as a base name. Reserved
// characters and control characters become spaces, whitespace runs collapse,
// and trailing dots are dropped. The result may be empty.
func SanitizeTitle(title string) string {
	mapped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(reservedTitleChars, r) || unicode.IsControl(r) {
			return ' '
		}
		return r
	}, title)

	cleaned := strings.Join(strings.Fields(mapped), " ")
	return strings.TrimRight(cleaned, ". ")
}

// DerivePath replaces the base name of originalPath with title, keeping its
// directory and extension byte for byte. title is expected to be sanitized
// already; only the title is normalized.
//
// An extensionless document whose title contains a dot gains an apparent
// extension, so deriving from the result again is not stable for it.
func DerivePath(originalPath, title string) string {
	dir, _, ext := splitPath(originalPath)
	name := normalizeTitle(title)
	if dir == "" {
		return name + ext
	}
	return dir + "/" + name + ext
}

// normalizeTitle puts a base name in NFC with plain spaces.
func normalizeTitle(title string) string {
	title = strings.ReplaceAll(title, "\u00a0", " ")
	title = strings.ReplaceAll(title, "\u202f", " ")
	return norm.NFC.String(title)
}

// splitPath splits p into directory, name and extension. A leading dot does
// not start an extension, so ".env" has none.
func splitPath(p string) (dir, name, ext string) {
	base := p
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		dir = p[:i]
		base = p[i+1:]
	}

	if i := strings.LastIndex(base, "."); i > 0 {
		return dir, base[:i], base[i:]
	}
	return dir, base, ""
}
