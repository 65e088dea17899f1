package analysis

import "strings"

// DefaultFormat is assumed when a request names no audio format.
const DefaultFormat = "mp3"

var formatMIME = map[string]string{
	"mp3":  "audio/mp3",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
	"m4a":  "audio/mp4",
	"webm": "audio/webm",
}

// SupportedFormats lists the accepted audio format names.
var SupportedFormats = []string{"mp3", "wav", "ogg", "flac", "m4a", "webm"}

// MIMEType returns the MIME type for a format name and whether the format is
// supported. An empty format means DefaultFormat.
func MIMEType(format string) (string, bool) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = DefaultFormat
	}
	mime, ok := formatMIME[format]
	return mime, ok
}
