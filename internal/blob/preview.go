package blob

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
	"io"

	xdraw "golang.org/x/image/draw"
)

const (
	DefaultPreviewMaxEdge = 480
	previewQuality        = 80
	// maxPreviewSourcePixels bounds the decoded size of an attachment we
	// are willing to thumbnail.
	maxPreviewSourcePixels = 40_000_000
)

var errPreviewTooLarge = errors.New("image too large to preview")

// renderPreview decodes an image attachment and returns a JPEG no larger
// than maxEdge on either side. Transparent areas are flattened onto white.
func renderPreview(src io.ReadSeeker, maxEdge int) ([]byte, error) {
	if maxEdge <= 0 {
		maxEdge = DefaultPreviewMaxEdge
	}

	cfg, _, err := image.DecodeConfig(src)
	if err != nil {
		return nil, fmt.Errorf("reading image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions")
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPreviewSourcePixels {
		return nil, errPreviewTooLarge
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding image: %w", err)
	}

	img, _, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	bounds := img.Bounds()
	width, height := scaleDimensions(bounds.Dx(), bounds.Dy(), maxEdge)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: previewQuality}); err != nil {
		return nil, fmt.Errorf("encoding preview: %w", err)
	}
	return buf.Bytes(), nil
}

// scaleDimensions fits width x height inside a maxEdge square, keeping the
// aspect ratio and never upscaling.
func scaleDimensions(width, height, maxEdge int) (int, int) {
	if width <= maxEdge && height <= maxEdge {
		return width, height
	}

	long, short := width, height
	if height > width {
		long, short = height, width
	}
	scaled := int(float64(short)*float64(maxEdge)/float64(long) + 0.5)
	if scaled < 1 {
		scaled = 1
	}

	if width >= height {
		return maxEdge, scaled
	}
	return scaled, maxEdge
}
