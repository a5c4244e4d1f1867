// enhance.go - Adaptive image enhancement before OCR

package extract

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// MaxImageDimension caps the longer side of an image sent to a recognizer.
const MaxImageDimension = 2500

// Enhance resizes a rendered page and applies light, standard or aggressive
// enhancement depending on its measured quality.
func Enhance(img image.Image) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return img
	}

	qualityScore := analyzeImageQuality(img)

	if width > MaxImageDimension || height > MaxImageDimension {
		if width > height {
			img = imaging.Resize(img, MaxImageDimension, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, MaxImageDimension, imaging.Lanczos)
		}
	}

	switch {
	case qualityScore < 50:
		img = applyAggressiveEnhancement(img)
	case qualityScore < 75:
		img = applyStandardEnhancement(img)
	default:
		img = applyLightEnhancement(img)
	}

	return imaging.Sharpen(img, 1.0)
}

// analyzeImageQuality returns a 0-100 score from sampled brightness and contrast.
// Ideal is mid-grey average with a wide spread; contrast weighs 60%.
func analyzeImageQuality(img image.Image) float64 {
	bounds := img.Bounds()

	var totalBrightness float64
	minBrightness, maxBrightness := 255.0, 0.0
	pixelCount := 0

	// every 10th pixel
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 10 {
		for x := bounds.Min.X; x < bounds.Max.X; x += 10 {
			r, g, b, _ := img.At(x, y).RGBA()
			brightness := (float64(r>>8) + float64(g>>8) + float64(b>>8)) / 3.0

			totalBrightness += brightness
			minBrightness = math.Min(minBrightness, brightness)
			maxBrightness = math.Max(maxBrightness, brightness)
			pixelCount++
		}
	}
	if pixelCount == 0 {
		return 0
	}

	avgBrightness := totalBrightness / float64(pixelCount)
	contrast := maxBrightness - minBrightness

	brightnessScore := 100.0 - math.Abs(avgBrightness-128.0)/1.28
	contrastScore := math.Min(contrast/2.0, 100.0)

	return brightnessScore*0.4 + contrastScore*0.6
}

func applyLightEnhancement(img image.Image) image.Image {
	result := imaging.Sharpen(img, 2.0)
	result = imaging.AdjustContrast(result, 30)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 20)
	return imaging.AdjustGamma(result, 1.05)
}

func applyStandardEnhancement(img image.Image) image.Image {
	result := imaging.Sharpen(img, 3.0)
	result = imaging.AdjustContrast(result, 45)
	result = imaging.AdjustBrightness(result, 15)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 35)
	return imaging.AdjustGamma(result, 1.15)
}

// applyAggressiveEnhancement is for faded or low-contrast scans. The blur
// then sharpen pair removes speckle while keeping glyph edges.
func applyAggressiveEnhancement(img image.Image) image.Image {
	result := imaging.Sharpen(img, 4.0)
	result = imaging.AdjustContrast(result, 60)
	result = imaging.AdjustBrightness(result, 25)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 55)
	result = imaging.AdjustGamma(result, 1.3)
	result = imaging.Blur(result, 0.5)
	result = imaging.Sharpen(result, 2.5)
	return imaging.AdjustContrast(result, 20)
}
