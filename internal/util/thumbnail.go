package util

import (
	"image"
	"net/http"
	"os"
	"path/filepath"

	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"presentation-api/pkg/apierror"
)

// GenerateThumbnail decodes the image at srcPath, scales it down so its
// longest side is at most size pixels, and writes a JPEG to destPath.
// Images already smaller than size are re-encoded without upscaling.
func GenerateThumbnail(srcPath string, destPath string, size int) error {
	if size <= 0 {
		size = 256
	}

	file, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer file.Close()

	src, _, err := image.Decode(file)
	if err != nil {
		return apierror.New("UNSUPPORTED_TYPE", "cannot decode image", err.Error(), http.StatusUnsupportedMediaType)
	}

	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return apierror.New("UNSUPPORTED_TYPE", "invalid image dimensions", srcPath, http.StatusUnsupportedMediaType)
	}

	targetWidth, targetHeight := width, height
	if width > size || height > size {
		if width >= height {
			targetWidth = size
			targetHeight = height * size / width
		} else {
			targetHeight = size
			targetWidth = width * size / height
		}
		if targetWidth < 1 {
			targetWidth = 1
		}
		if targetHeight < 1 {
			targetHeight = 1
		}
	}

	scaled := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), src, bounds, draw.Over, nil)

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}

	// Write to a temp name first so a concurrent reader never sees a
	// half-written thumbnail.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), "thumb-*.jpg")
	if err != nil {
		return err
	}

	if err := jpeg.Encode(tmp, scaled, &jpeg.Options{Quality: 85}); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), destPath); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	return nil
}
