package extractor

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// Hauteur minimale d'une page avant agrandissement. Les rendus plus petits
// donnent un OCR nettement moins fiable.
const minPageHeight = 1000

// preprocessForOCR applique la chaîne : niveaux de gris, débruitage,
// étirement de contraste, binarisation adaptative, accentuation, puis
// agrandissement des pages trop petites.
func preprocessForOCR(img image.Image) image.Image {
	gray := toGray(img)
	denoised := boxBlur3(gray)
	enhanced := stretchContrast(denoised)
	binary := adaptiveThreshold(enhanced, 11, 2)
	sharpened := sharpen3(binary)
	return upscaleIfSmall(sharpened)
}

func toGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// boxBlur3 débruite par moyenne 3x3
func boxBlur3(src *image.Gray) *image.Gray {
	bounds := src.Bounds()
	dst := image.NewGray(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			var sum, count int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < bounds.Min.X || nx >= bounds.Max.X || ny < bounds.Min.Y || ny >= bounds.Max.Y {
						continue
					}
					sum += int(src.GrayAt(nx, ny).Y)
					count++
				}
			}
			dst.SetGray(x, y, color.Gray{Y: uint8(sum / count)})
		}
	}
	return dst
}

// stretchContrast étale l'histogramme sur toute la plage 0..255
func stretchContrast(src *image.Gray) *image.Gray {
	bounds := src.Bounds()

	minV, maxV := uint8(255), uint8(0)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v := src.GrayAt(x, y).Y
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}
	}

	if maxV <= minV {
		return src
	}

	scale := 255.0 / float64(maxV-minV)
	dst := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			// Arrondi obligatoire : la troncature enverrait le maximum
			// sur 254 au lieu de 255
			v := float64(src.GrayAt(x, y).Y-minV) * scale
			dst.SetGray(x, y, color.Gray{Y: uint8(math.Round(v))})
		}
	}
	return dst
}

// adaptiveThreshold binarise chaque pixel contre la moyenne de sa fenêtre,
// calculée en O(1) par image intégrale.
func adaptiveThreshold(src *image.Gray, window, c int) *image.Gray {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	// Image intégrale avec ligne/colonne zéro en tête
	integral := make([][]int64, h+1)
	for i := range integral {
		integral[i] = make([]int64, w+1)
	}
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			integral[y+1][x+1] = integral[y][x+1] + rowSum
		}
	}

	half := window / 2
	dst := image.NewGray(bounds)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x1 := max(0, x-half)
			y1 := max(0, y-half)
			x2 := min(w-1, x+half)
			y2 := min(h-1, y+half)

			area := int64((x2 - x1 + 1) * (y2 - y1 + 1))
			sum := integral[y2+1][x2+1] - integral[y1][x2+1] - integral[y2+1][x1] + integral[y1][x1]
			mean := sum / area

			v := int64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			if v > mean-int64(c) {
				dst.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: 255})
			} else {
				dst.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: 0})
			}
		}
	}
	return dst
}

// sharpen3 accentue les contours par convolution 3x3 (centre 9, voisins -1)
func sharpen3(src *image.Gray) *image.Gray {
	bounds := src.Bounds()
	dst := image.NewGray(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			var sum int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < bounds.Min.X {
						nx = bounds.Min.X
					}
					if nx >= bounds.Max.X {
						nx = bounds.Max.X - 1
					}
					if ny < bounds.Min.Y {
						ny = bounds.Min.Y
					}
					if ny >= bounds.Max.Y {
						ny = bounds.Max.Y - 1
					}

					v := int(src.GrayAt(nx, ny).Y)
					if dx == 0 && dy == 0 {
						sum += 9 * v
					} else {
						sum -= v
					}
				}
			}
			dst.SetGray(x, y, color.Gray{Y: clampByte(sum)})
		}
	}
	return dst
}

// upscaleIfSmall agrandit les pages de moins de minPageHeight pixels de haut
// par interpolation Catmull-Rom.
func upscaleIfSmall(src *image.Gray) image.Image {
	bounds := src.Bounds()
	height := bounds.Dy()
	if height >= minPageHeight {
		return src
	}

	scale := float64(minPageHeight) / float64(height)
	newW := int(float64(bounds.Dx()) * scale)

	dst := image.NewGray(image.Rect(0, 0, newW, minPageHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
