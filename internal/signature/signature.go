// Package signature handles the drawn-signature payload captured by the
// form's canvas: emptiness checks for validation and decoding of the
// data URL into raw image bytes for upload and document embedding.
package signature

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Image is the decoded signature raster.
type Image struct {
	Bytes     []byte
	MediaType string // e.g. "image/png", "image/jpeg"
}

// IsEmpty reports whether the signature payload contains no strokes: a
// missing data URL or one with a blank base64 section. Malformed base64
// is not an emptiness condition; it surfaces later as a decode error.
func IsEmpty(dataURL string) bool {
	dataURL = strings.TrimSpace(dataURL)
	if dataURL == "" {
		return true
	}
	_, payload, ok := splitDataURL(dataURL)
	if !ok {
		return false
	}
	return strings.TrimSpace(payload) == ""
}

// Decode parses a `data:image/...;base64,` URL into its raw bytes. An
// undecodable payload is the one failure class that aborts a submission
// after validation, since a document without a real signature cannot
// honestly be confirmed as sent.
func Decode(dataURL string) (*Image, error) {
	meta, payload, ok := splitDataURL(strings.TrimSpace(dataURL))
	if !ok {
		return nil, fmt.Errorf("signature payload is not a data URL")
	}

	mediaType := strings.TrimPrefix(meta, "data:")
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = mediaType[:i]
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("signature payload has media type %q, want an image", mediaType)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature base64: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("signature payload is empty")
	}

	return &Image{Bytes: raw, MediaType: mediaType}, nil
}

func splitDataURL(dataURL string) (meta, payload string, ok bool) {
	if !strings.HasPrefix(dataURL, "data:") {
		return "", "", false
	}
	meta, payload, found := strings.Cut(dataURL, ",")
	if !found {
		return "", "", false
	}
	return meta, payload, true
}
