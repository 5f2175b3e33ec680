package common

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// AttachmentDisposition builds a Content-Disposition header value that
// makes the browser save the response as name. Non-ASCII names get an
// ASCII fallback plus an RFC 5987 filename* parameter.
func AttachmentDisposition(name string) string {
	fallback := ASCIIFilename(name)
	if fallback == name {
		return fmt.Sprintf(`attachment; filename="%s"`, fallback)
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, fallback, encodeExtValue(name))
}

// ASCIIFilename strips accents from name and replaces whatever is left
// outside printable ASCII, as well as quotes and backslashes, with "_".
func ASCIIFilename(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, name)
	if err != nil {
		s = name
	}
	var b strings.Builder
	for _, r := range s {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const attrChars = "!#$&+-.^_`|~"

func encodeExtValue(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x80 && (c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || strings.IndexByte(attrChars, c) >= 0) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}
