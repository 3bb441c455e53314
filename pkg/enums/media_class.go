package enums

import "fmt"

// MediaClass partitions moments by the kind of asset they carry.
type MediaClass string

const (
	MediaClassImage MediaClass = "image"
	MediaClassVideo MediaClass = "video"
	MediaClassAudio MediaClass = "audio"
	MediaClassNote  MediaClass = "note"
)

var validMediaClasses = []MediaClass{
	MediaClassImage,
	MediaClassVideo,
	MediaClassAudio,
	MediaClassNote,
}

// String returns the literal string for the class.
func (m MediaClass) String() string {
	return string(m)
}

// IsValid reports whether the class is known.
func (m MediaClass) IsValid() bool {
	for _, candidate := range validMediaClasses {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMediaClass converts raw input into a MediaClass.
func ParseMediaClass(value string) (MediaClass, error) {
	for _, candidate := range validMediaClasses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid media class %q", value)
}
