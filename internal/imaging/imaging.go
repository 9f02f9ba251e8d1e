// Package imaging inspects uploaded images and renders gallery thumbnails.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/nfnt/resize"
	"github.com/vincent-petithory/dataurl"
	_ "golang.org/x/image/webp"
)

const (
	// ThumbnailSize bounds both sides of a thumbnail.
	ThumbnailSize = 480

	thumbnailQuality = 85
	maxPixels        = 40_000_000
)

var (
	ErrUnsupported = errors.New("imaging: unsupported image type")
	ErrTooManyPix  = errors.New("imaging: image dimensions too large")
)

// Kind is an accepted image format.
type Kind struct {
	Ext         string
	ContentType string
}

var kinds = map[string]Kind{
	"image/png":  {Ext: "png", ContentType: "image/png"},
	"image/jpeg": {Ext: "jpg", ContentType: "image/jpeg"},
	"image/gif":  {Ext: "gif", ContentType: "image/gif"},
	"image/webp": {Ext: "webp", ContentType: "image/webp"},
}

// Sniff identifies the format from the leading bytes. The declared type of
// the upload is ignored.
func Sniff(data []byte) (Kind, error) {
	ct := http.DetectContentType(data)
	if k, ok := kinds[ct]; ok {
		return k, nil
	}
	return Kind{}, fmt.Errorf("%w: %s", ErrUnsupported, ct)
}

// KindFor maps a declared content type to a Kind.
func KindFor(contentType string) (Kind, bool) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		ct = "image/jpeg"
	}
	k, ok := kinds[ct]
	return k, ok
}

// KindForExt maps a file extension (with or without the dot) to a Kind.
func KindForExt(ext string) (Kind, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "jpeg" {
		ext = "jpg"
	}
	for _, k := range kinds {
		if k.Ext == ext {
			return k, true
		}
	}
	return Kind{}, false
}

// Thumbnail decodes data and returns a JPEG no larger than ThumbnailSize on
// either side. Transparent areas are flattened onto white.
func Thumbnail(data []byte) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imaging: reading header: %w", err)
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, ErrTooManyPix
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imaging: decoding: %w", err)
	}

	thumb := resize.Thumbnail(ThumbnailSize, ThumbnailSize, img, resize.Lanczos3)

	canvas := image.NewRGBA(thumb.Bounds())
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), thumb, thumb.Bounds().Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, fmt.Errorf("imaging: encoding thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeDataURL extracts the payload of a "data:image/...;base64," URL.
// The returned Kind comes from sniffing the payload, not the URL header.
func DecodeDataURL(s string) ([]byte, Kind, error) {
	du, err := dataurl.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, Kind{}, fmt.Errorf("imaging: decoding data url: %w", err)
	}
	if du.MediaType.Type != "image" {
		return nil, Kind{}, fmt.Errorf("%w: %s", ErrUnsupported, du.ContentType())
	}
	k, err := Sniff(du.Data)
	if err != nil {
		return nil, Kind{}, err
	}
	return du.Data, k, nil
}
