package signals

import (
	"context"
	"image"
	"math"
	"math/cmplx"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/cuongbtq/truthlens/internal/domain"
)

const (
	// tileSize is the side of the grayscale resample analyzed. Fixed size
	// removes the bias of large images carrying more high frequency energy.
	tileSize = 256

	hfMultiplier  = 150
	fftMultiplier = 10
	hfWeight      = 0.6
	fftWeight     = 0.4

	centerRadius = 5
	epsilon      = 1e-8
)

// FrequencyAnalyzer scores frequency domain artifacts. Generators do not
// reproduce camera sensor noise, which shows up as unnatural high frequency
// energy and periodic grid peaks. It is safe for concurrent use.
type FrequencyAnalyzer struct {
	// dctScale maps the unnormalized transform onto the orthonormal DCT-II
	dctScale []float64
}

// NewFrequencyAnalyzer creates an analyzer for tileSize tiles
func NewFrequencyAnalyzer() *FrequencyAnalyzer {
	return &FrequencyAnalyzer{dctScale: orthonormalScale(tileSize)}
}

// Score returns the 0-100 frequency anomaly score
func (a *FrequencyAnalyzer) Score(ctx context.Context, data []byte) (float64, error) {
	img, _, err := decodeImage(data)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	tile := grayscaleTile(img, tileSize)

	hfScore := math.Min(a.highFrequencyRatio(tile)*hfMultiplier, 100)
	fftScore := math.Min(centerEnergyRatio(tile)*fftMultiplier, 100)

	combined := hfScore*hfWeight + fftScore*fftWeight
	return domain.ClampScore(math.Round(combined*100) / 100), nil
}

// highFrequencyRatio compares the mean absolute DCT energy of the high
// frequency quadrant with the low frequency quadrant.
func (a *FrequencyAnalyzer) highFrequencyRatio(tile [][]float64) float64 {
	coeffs := dct2(tile, a.dctScale)
	half := len(coeffs) / 2

	var high, low float64
	for y := 0; y < half; y++ {
		for x := 0; x < half; x++ {
			low += math.Abs(coeffs[y][x])
			high += math.Abs(coeffs[y+half][x+half])
		}
	}
	n := float64(half * half)
	return (high / n) / (low/n + epsilon)
}

// centerEnergyRatio compares the log magnitude around the centered DC term
// with the mean log magnitude of the whole spectrum.
func centerEnergyRatio(tile [][]float64) float64 {
	n := len(tile)
	spectrum := fft2(tile)

	var total, center float64
	c := n / 2
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			mag := math.Log(cmplx.Abs(spectrum[y][x]) + 1)
			total += mag
			if y >= c-centerRadius && y < c+centerRadius && x >= c-centerRadius && x < c+centerRadius {
				center += mag
			}
		}
	}
	size := float64(n * n)
	return (center / size) / (total/size + epsilon)
}

func grayscaleTile(img image.Image, size int) [][]float64 {
	gray := image.NewGray(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)

	out := make([][]float64, size)
	for y := 0; y < size; y++ {
		row := make([]float64, size)
		for x := 0; x < size; x++ {
			row[x] = float64(gray.GrayAt(x, y).Y)
		}
		out[y] = row
	}
	return out
}

// orthonormalScale returns the per coefficient factor turning gonum's
// CosSequence output, a DCT-II scaled by 4, into the orthonormal DCT-II
func orthonormalScale(n int) []float64 {
	scale := make([]float64, n)
	for k := range scale {
		scale[k] = math.Sqrt(2/float64(n)) / 4
	}
	scale[0] = math.Sqrt(1/float64(n)) / 4
	return scale
}

// dct2 is a row-column orthonormal 2D DCT-II of a square tile. scale comes
// from orthonormalScale(len(tile)).
func dct2(tile [][]float64, scale []float64) [][]float64 {
	n := len(tile)
	// QuarterWaveFFT keeps work buffers, one per call keeps Score reentrant
	t := fourier.NewQuarterWaveFFT(n)

	out := make([][]float64, n)
	for y, row := range tile {
		out[y] = t.CosSequence(nil, row)
		for x := range out[y] {
			out[y][x] *= scale[x]
		}
	}

	col := make([]float64, n)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			col[y] = out[y][x]
		}
		t.CosSequence(col, col)
		for y := 0; y < n; y++ {
			out[y][x] = col[y] * scale[y]
		}
	}
	return out
}

// fft2 is a row-column 2D FFT with the zero frequency shifted to the center
func fft2(tile [][]float64) [][]complex128 {
	n := len(tile)
	t := fourier.NewCmplxFFT(n)

	spectrum := make([][]complex128, n)
	for y, row := range tile {
		seq := make([]complex128, n)
		for x, v := range row {
			seq[x] = complex(v, 0)
		}
		spectrum[y] = t.Coefficients(nil, seq)
	}

	col := make([]complex128, n)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			col[y] = spectrum[y][x]
		}
		t.Coefficients(col, col)
		for y := 0; y < n; y++ {
			spectrum[y][x] = col[y]
		}
	}

	shifted := make([][]complex128, n)
	for y := 0; y < n; y++ {
		shifted[y] = make([]complex128, n)
		for x := 0; x < n; x++ {
			shifted[y][x] = spectrum[t.ShiftIdx(y)][t.ShiftIdx(x)]
		}
	}
	return shifted
}
