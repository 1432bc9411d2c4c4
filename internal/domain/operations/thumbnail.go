package operations

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"

	// Decoders for image.Decode.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// maxThumbnailSourcePixels caps the decoded size of a thumbnail source.
const maxThumbnailSourcePixels = 64 << 20

var errNoThumbnail = errors.New("no thumbnail")

func thumbnailable(contentType string) bool {
	switch contentType {
	case "image/png", "image/jpeg", "image/gif", "image/bmp", "image/webp":
		return true
	}
	return false
}

// thumbnail downscales the image in src to fit a bound x bound box. It returns
// errNoThumbnail when the image already fits or cannot be decoded, in which
// case the caller serves the original.
func thumbnail(src io.ReadSeeker, bound int) ([]byte, string, error) {
	cfg, format, err := image.DecodeConfig(src)
	if err != nil {
		return nil, "", errNoThumbnail
	}
	if cfg.Width <= bound && cfg.Height <= bound {
		return nil, "", errNoThumbnail
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxThumbnailSourcePixels {
		return nil, "", errNoThumbnail
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, "", err
	}

	img, _, err := image.Decode(src)
	if err != nil {
		return nil, "", errNoThumbnail
	}

	w, h := fit(cfg.Width, cfg.Height, bound)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	switch format {
	case "png", "gif", "webp":
		// Keep transparency.
		err = png.Encode(&buf, dst)
		format = "image/png"
	default:
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85})
		format = "image/jpeg"
	}
	if err != nil {
		return nil, "", err
	}
	return buf.Bytes(), format, nil
}

// fit scales w x h to fit a bound x bound box, preserving aspect ratio.
func fit(w, h, bound int) (int, int) {
	if w >= h {
		nh := h * bound / w
		if nh < 1 {
			nh = 1
		}
		return bound, nh
	}
	nw := w * bound / h
	if nw < 1 {
		nw = 1
	}
	return nw, bound
}
