package analysis

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// MinAudioBytes is the smallest decoded payload accepted as audio.
const MinAudioBytes = 10

// ErrInvalidAudio is returned when the transport encoding cannot be decoded
// or the decoded payload is too small to be audio.
var ErrInvalidAudio = errors.New("analysis: invalid audio")

// DecodeAudio decodes standard base64. Surrounding whitespace is ignored and
// missing trailing padding is restored. Payloads shorter than MinAudioBytes
// are rejected.
func DecodeAudio(encoded string) ([]byte, error) {
	s := strings.TrimSpace(encoded)
	if s == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidAudio)
	}
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	if len(data) < MinAudioBytes {
		return nil, fmt.Errorf("%w: decoded payload is %d bytes, need at least %d", ErrInvalidAudio, len(data), MinAudioBytes)
	}
	return data, nil
}
