// Package filename builds download filenames that are safe on every common
// filesystem.
package filename

import (
	"mime"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxBaseLength bounds the base name, before suffix and extension.
const MaxBaseLength = 80

// Fallback is used when nothing printable survives sanitizing.
const Fallback = "video"

// illegal holds characters rejected by Windows, macOS or Linux filesystems.
const illegal = `<>:"/\|?*`

// Letters that decomposition alone does not reduce to ASCII.
var ligatures = strings.NewReplacer(
	"ß", "ss", "Æ", "AE", "æ", "ae", "Œ", "OE", "œ", "oe",
	"Ø", "O", "ø", "o", "Đ", "D", "đ", "d", "Ł", "L", "ł", "l",
	"Þ", "Th", "þ", "th", "ı", "i",
)

// Sanitize turns a free-form title into a filename: base + suffix + ext.
//
// Accents are folded to ASCII, characters illegal on common filesystems and
// control characters are removed, anything still outside printable ASCII is
// dropped, whitespace runs collapse to one space, and the base is cut to
// MaxBaseLength. An empty result becomes Fallback. ext should include its dot.
func Sanitize(title, suffix, ext string) string {
	base := fold(title)

	var b strings.Builder
	space := false
	for _, r := range base {
		switch {
		case unicode.IsSpace(r):
			space = b.Len() > 0
			continue
		case r < 0x20 || r == 0x7f || r > 0x7e:
			continue
		case strings.ContainsRune(illegal, r):
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}

	name := trim(b.String())
	if len(name) > MaxBaseLength {
		name = trim(name[:MaxBaseLength])
	}
	if name == "" {
		name = Fallback
	}

	return name + cleanToken(suffix) + cleanToken(ext)
}

func fold(s string) string {
	s = ligatures.Replace(s)
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// trim removes characters Windows refuses at the end of a name.
func trim(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ". ")
}

// cleanToken keeps suffix and extension tokens to a filename-safe subset.
func cleanToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		}
		return -1
	}, s)
}

// ContentDisposition returns an attachment header value for name.
func ContentDisposition(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return `attachment; filename="` + Fallback + `"`
}
