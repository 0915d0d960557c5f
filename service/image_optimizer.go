package service

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"math"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/webp"

	"decoration-mirror/models"
	"decoration-mirror/utils"
)

const (
	// Quality settings
	qualityFull  = 90
	qualityThumb = 85

	thumbExt = ".webp"
)

var sizeSpecs = map[models.Category][2]models.SizeSpec{
	models.CategoryAvatarDecoration: {{Width: 160, Height: 160}, {Width: 80, Height: 80}},
	models.CategoryProfileEffect:    {{Width: 400, Height: 400}, {Width: 200, Height: 200}},
	models.CategoryBanner:           {{Width: 600, Height: 240}, {Width: 300, Height: 120}},
}

// SizeSpecsFor returns the full-size and thumbnail bounding boxes of a category
func SizeSpecsFor(category models.Category) (models.SizeSpec, models.SizeSpec, bool) {
	specs, ok := sizeSpecs[category]
	if !ok {
		return models.SizeSpec{}, models.SizeSpec{}, false
	}
	return specs[0], specs[1], true
}

// ImageOptimizer turns downloaded bytes into the on-disk full-size and thumbnail files
// Implements ImageOptimizerInterface
type ImageOptimizer struct{}

// NewImageOptimizer creates a new ImageOptimizer
func NewImageOptimizer() *ImageOptimizer {
	return &ImageOptimizer{}
}

// Ensure ImageOptimizer implements ImageOptimizerInterface
var _ ImageOptimizerInterface = (*ImageOptimizer)(nil)

// Optimize writes the full-size and thumbnail files for one asset.
// Animated assets keep their original bytes at full size; only the thumbnail is re-encoded from the first frame.
func (o *ImageOptimizer) Optimize(data []byte, isAnimated bool, fullBase, thumbBase string, fullSpec, thumbSpec models.SizeSpec) (*models.OptimizedPaths, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("image data is empty")
	}
	if fullBase == "" || thumbBase == "" {
		return nil, fmt.Errorf("destination paths are required")
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	log.Printf("📸 Image decoded: format=%s, bounds=%v, animated=%t", format, img.Bounds(), isAnimated)

	thumbData, err := encodeContained(img, thumbSpec, qualityThumb)
	if err != nil {
		return nil, fmt.Errorf("failed to render thumbnail: %w", err)
	}

	var fullPath string
	var fullData []byte
	if isAnimated {
		fullPath = fullBase + originalExtension(data)
		fullData = data
	} else {
		fullPath = fullBase + thumbExt
		fullData, err = encodeContained(img, fullSpec, qualityFull)
		if err != nil {
			return nil, fmt.Errorf("failed to render full size: %w", err)
		}
	}

	thumbPath := thumbBase + thumbExt
	if err := utils.WriteFileAtomic(fullPath, fullData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write full size: %w", err)
	}
	if err := utils.WriteFileAtomic(thumbPath, thumbData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write thumbnail: %w", err)
	}

	log.Printf("✓ Image optimized: full=%s (%d bytes), thumb=%s (%d bytes)", fullPath, len(fullData), thumbPath, len(thumbData))
	return &models.OptimizedPaths{FullPath: fullPath, ThumbPath: thumbPath}, nil
}

// encodeContained fits img into a transparent canvas of exactly spec
// and encodes the result as lossy WebP
func encodeContained(img image.Image, spec models.SizeSpec, quality int) ([]byte, error) {
	canvas, err := containFit(img, spec)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, canvas, webp.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode to WebP: %w", err)
	}
	return buf.Bytes(), nil
}

func containFit(img image.Image, spec models.SizeSpec) (*image.NRGBA, error) {
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", spec.Width, spec.Height)
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("image has no pixels")
	}

	scale := math.Min(float64(spec.Width)/float64(width), float64(spec.Height)/float64(height))
	fitWidth := clampDim(int(math.Round(float64(width)*scale)), spec.Width)
	fitHeight := clampDim(int(math.Round(float64(height)*scale)), spec.Height)

	var fitted image.Image = img
	if fitWidth != width || fitHeight != height {
		fitted = imaging.Resize(img, fitWidth, fitHeight, imaging.Lanczos)
	}
	canvas := imaging.New(spec.Width, spec.Height, color.NRGBA{0, 0, 0, 0})
	return imaging.PasteCenter(canvas, fitted), nil
}

func clampDim(v, limit int) int {
	if v < 1 {
		return 1
	}
	if v > limit {
		return limit
	}
	return v
}

// originalExtension sniffs the container format of the original bytes
func originalExtension(data []byte) string {
	if ext := mimetype.Detect(data).Extension(); ext != "" {
		return ext
	}
	return ".bin"
}
