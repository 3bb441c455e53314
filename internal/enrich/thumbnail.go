package enrich

import (
	"bytes"
	"path"
	"strings"

	"github.com/disintegration/imaging"

	pkgerrors "github.com/tracehq/trace-backend/pkg/errors"
)

// buildThumbnail decodes raw image bytes and renders a square, center-cropped
// JPEG preview. EXIF orientation is applied before cropping so rotated phone
// shots come out upright. A body that does not decode as an image is a
// validation error, not a transient one.
func buildThumbnail(raw []byte, size, quality int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "image does not decode")
	}

	thumb := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding thumbnail")
	}
	return buf.Bytes(), nil
}

// thumbnailKeyFor derives the thumbnail object key from the original's key:
// the images/ path segment becomes thumbnails/ and the extension becomes
// .jpg, since thumbnails are always re-encoded as JPEG.
func thumbnailKeyFor(storageKey string) string {
	key := strings.Replace(storageKey, "images/", "thumbnails/", 1)
	if ext := path.Ext(key); ext != "" {
		key = strings.TrimSuffix(key, ext)
	}
	return key + ".jpg"
}
