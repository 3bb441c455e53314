package ingest

import (
	"fmt"
	"mime"
	"strings"

	"github.com/tracehq/trace-backend/pkg/enums"
)

// The upload allow-list is explicit: a MIME type outside these sets is
// rejected at sign time rather than guessed from its prefix.
var (
	imageMimeTypes = []string{
		"image/jpeg",
		"image/png",
		"image/webp",
		"image/heic",
		"image/heif",
		"image/tiff",
		"image/avif",
		"image/gif",
	}
	videoMimeTypes = []string{
		"video/mp4",
		"video/quicktime",
		"video/x-msvideo",
		"video/webm",
		"video/mpeg",
		"video/3gpp",
	}
	audioMimeTypes = []string{
		"audio/mpeg",
		"audio/mp4",
		"audio/wav",
		"audio/webm",
		"audio/ogg",
		"audio/aac",
	}
	trackMimeTypes = []string{
		"application/gpx+xml",
		"application/xml",
		"text/xml",
	}
)

var classByMime = buildClassIndex()

func buildClassIndex() map[string]enums.MediaClass {
	index := make(map[string]enums.MediaClass, len(imageMimeTypes)+len(videoMimeTypes)+len(audioMimeTypes))
	for _, m := range imageMimeTypes {
		index[m] = enums.MediaClassImage
	}
	for _, m := range videoMimeTypes {
		index[m] = enums.MediaClassVideo
	}
	for _, m := range audioMimeTypes {
		index[m] = enums.MediaClassAudio
	}
	return index
}

// NormalizeMime parses and lowercases a declared content type, dropping
// parameters like charset.
func NormalizeMime(value string) (string, error) {
	clean := strings.TrimSpace(value)
	if clean == "" {
		return "", fmt.Errorf("mime type required")
	}
	mediaType, _, err := mime.ParseMediaType(clean)
	if err != nil {
		return "", fmt.Errorf("mime type invalid: %w", err)
	}
	return strings.ToLower(mediaType), nil
}

// classifyMime maps an allow-listed MIME type to its media class.
// Unrecognized types are an error, never silently classed.
func classifyMime(value string) (enums.MediaClass, string, error) {
	normalized, err := NormalizeMime(value)
	if err != nil {
		return "", "", err
	}
	class, ok := classByMime[normalized]
	if !ok {
		return "", "", fmt.Errorf("unsupported type: %s", normalized)
	}
	return class, normalized, nil
}

// IsTrackMime reports whether the declared type (or a .gpx file name)
// identifies a GPS track file.
func IsTrackMime(mimeType, fileName string) bool {
	normalized, err := NormalizeMime(mimeType)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(fileName), ".gpx")
	}
	for _, candidate := range trackMimeTypes {
		if candidate == normalized {
			return true
		}
	}
	return strings.HasSuffix(strings.ToLower(fileName), ".gpx")
}
