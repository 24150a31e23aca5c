package upload

import (
	"fmt"
	"strings"
	"time"
)

// SignatureKey builds the storage key for a signature raster. The epoch
// millisecond stamp keeps repeat submissions by the same patient from
// overwriting each other.
func SignatureKey(first, last string, t time.Time, ext string) string {
	return fmt.Sprintf("signatures/%s-%s-%d%s", slug(first), slug(last), t.UnixMilli(), ext)
}

// ConsentKey builds the storage key for a generated consent document.
func ConsentKey(consentType, first, last string, t time.Time) string {
	return fmt.Sprintf(
		"consents/%s-consent-%s-%s-%d.pdf",
		slug(consentType), slug(first), slug(last), t.UnixMilli(),
	)
}

// ExtensionFor maps a signature media type to its key extension.
func ExtensionFor(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	default:
		return ".bin"
	}
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, s)
}
