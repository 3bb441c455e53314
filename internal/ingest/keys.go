package ingest

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/tracehq/trace-backend/pkg/enums"
)

var classDirs = map[enums.MediaClass]string{
	enums.MediaClassImage: "images",
	enums.MediaClassVideo: "videos",
	enums.MediaClassAudio: "audio",
}

// buildStorageKey derives the object key for a new moment. The key is
// deterministic from (activity, class, id, extension) so that workers and
// the thumbnail path derivation can rely on its shape.
func buildStorageKey(activityID uuid.UUID, class enums.MediaClass, momentID uuid.UUID, fileName string) string {
	dir, ok := classDirs[class]
	if !ok {
		dir = "media"
	}
	ext := strings.ToLower(path.Ext(sanitizeFileName(fileName)))
	return fmt.Sprintf("activities/%s/%s/%s%s", activityID, dir, momentID, ext)
}

func sanitizeFileName(name string) string {
	if name == "" {
		return ""
	}
	clean := path.Base(strings.TrimSpace(name))
	if clean == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(clean))
	for _, r := range clean {
		switch {
		case r == '/' || r == '\\' || unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-_.")
}
