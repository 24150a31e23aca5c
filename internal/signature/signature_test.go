package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		name    string
		dataURL string
		empty   bool
	}{
		{"Empty", "", true},
		{"Whitespace", "   \n", true},
		{"BlankPayload", "data:image/png;base64,", true},
		{"WhitespacePayload", "data:image/png;base64,   ", true},
		{"NotADataURL", "aGVsbG8=", false},
		{"HasStrokes", "data:image/png;base64,aGVsbG8=", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.empty, IsEmpty(tt.dataURL))
		})
	}
}

func TestDecode(t *testing.T) {
	t.Run("PNG", func(t *testing.T) {
		img, err := Decode("data:image/png;base64,aGVsbG8=")

		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), img.Bytes)
		assert.Equal(t, "image/png", img.MediaType)
	})

	t.Run("JPEGWithPadding", func(t *testing.T) {
		img, err := Decode("  data:image/jpeg;base64,aGVsbG8=  ")

		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", img.MediaType)
	})

	t.Run("NotADataURL", func(t *testing.T) {
		_, err := Decode("aGVsbG8=")

		assert.ErrorContains(t, err, "not a data URL")
	})

	t.Run("NotAnImage", func(t *testing.T) {
		_, err := Decode("data:text/plain;base64,aGVsbG8=")

		assert.ErrorContains(t, err, "want an image")
	})

	t.Run("BadBase64", func(t *testing.T) {
		_, err := Decode("data:image/png;base64,!!!not-base64!!!")

		assert.ErrorContains(t, err, "failed to decode signature base64")
	})

	t.Run("EmptyPayload", func(t *testing.T) {
		_, err := Decode("data:image/png;base64,")

		assert.ErrorContains(t, err, "empty")
	})
}
