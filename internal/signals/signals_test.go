package signals

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/truthlens/internal/inference"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 3), B: uint8((x + y) % 256), A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

type stubFaceDetector struct {
	det inference.FaceDetection
	err error
}

func (s stubFaceDetector) DetectFace(context.Context, []byte) (inference.FaceDetection, error) {
	return s.det, s.err
}

type stubScorer struct {
	score float64
	err   error
	model string
}

func (s *stubScorer) Score(_ context.Context, model string, _ []byte) (float64, error) {
	s.model = model
	return s.score, s.err
}

func (s *stubScorer) GradCAM(_ context.Context, model string, _ []byte) (string, error) {
	s.model = model
	return "heatmap", s.err
}

func TestFaceCropper_Extract(t *testing.T) {
	data := encodePNG(t, testImage(200, 160))

	tests := []struct {
		name      string
		detector  stubFaceDetector
		wantCrop  bool
		wantBox   image.Rectangle
		wantErr   bool
		wantFaces int
	}{
		{
			name:     "no face",
			detector: stubFaceDetector{det: inference.FaceDetection{FacesFound: 0}},
		},
		{
			name: "face padded inside image",
			detector: stubFaceDetector{det: inference.FaceDetection{
				FacesFound: 1, Confidence: 98.123,
				BBox: &inference.BBox{X1: 50, Y1: 40, X2: 100, Y2: 90},
			}},
			wantCrop:  true,
			wantBox:   image.Rect(20, 10, 130, 120),
			wantFaces: 1,
		},
		{
			name: "padding clipped at borders",
			detector: stubFaceDetector{det: inference.FaceDetection{
				FacesFound: 2, Confidence: 90,
				BBox: &inference.BBox{X1: 5, Y1: 5, X2: 190, Y2: 150},
			}},
			wantCrop:  true,
			wantBox:   image.Rect(0, 0, 200, 160),
			wantFaces: 2,
		},
		{
			name:     "detector failure",
			detector: stubFaceDetector{err: errors.New("model not loaded")},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cropper := NewFaceCropper(tt.detector, DefaultFacePadding)
			crop, info, err := cropper.Extract(context.Background(), data)

			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, crop)
				return
			}
			require.NoError(t, err)

			if !tt.wantCrop {
				assert.Nil(t, crop)
				assert.Equal(t, NoFaceMessage, info.Message)
				assert.Equal(t, 0, info.FacesFound)
				return
			}

			require.NotNil(t, crop)
			cfg, format, err := image.DecodeConfig(bytes.NewReader(crop))
			require.NoError(t, err)
			assert.Equal(t, "jpeg", format)
			assert.Equal(t, tt.wantBox.Dx(), cfg.Width)
			assert.Equal(t, tt.wantBox.Dy(), cfg.Height)
			require.NotNil(t, info.BBox)
			assert.Equal(t, tt.wantBox.Min.X, info.BBox.X1)
			assert.Equal(t, tt.wantBox.Max.Y, info.BBox.Y2)
			assert.Equal(t, tt.wantFaces, info.FacesFound)
		})
	}
}

func TestModelDetector_Score(t *testing.T) {
	scorer := &stubScorer{score: 140}
	d := NewModelDetector(scorer, ModelHandle{Name: "clip"})

	score, err := d.Score(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, 100.0, score)
	assert.Equal(t, "clip", scorer.model)

	scorer.err = errors.New("timeout")
	_, err = d.Score(context.Background(), []byte("img"))
	assert.ErrorContains(t, err, "clip")
}

func TestVisualizer_UsesGivenHandle(t *testing.T) {
	renderer := &stubScorer{}
	v := NewVisualizer(renderer)

	heatmap, err := v.Visualize(context.Background(), ModelHandle{Name: "efficientnet"}, []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "heatmap", heatmap)
	assert.Equal(t, "efficientnet", renderer.model)
}

func TestFrequencyAnalyzer_Score(t *testing.T) {
	analyzer := NewFrequencyAnalyzer()

	score, err := analyzer.Score(context.Background(), encodePNG(t, testImage(300, 200)))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 100.0)

	again, err := analyzer.Score(context.Background(), encodePNG(t, testImage(300, 200)))
	require.NoError(t, err)
	assert.Equal(t, score, again)

	_, err = analyzer.Score(context.Background(), []byte("not an image"))
	assert.Error(t, err)
}

func TestDCT2_ConstantTileHasOnlyDC(t *testing.T) {
	const n = 8
	x := make([][]float64, n)
	for i := range x {
		x[i] = make([]float64, n)
		for j := range x[i] {
			x[i][j] = 10
		}
	}

	c := dct2(x, orthonormalScale(n))
	assert.InDelta(t, 80, c[0][0], 1e-9)
	assert.InDelta(t, 0, c[3][5], 1e-9)
	assert.InDelta(t, 0, c[0][1], 1e-9)
}

func TestDCT2_PreservesEnergy(t *testing.T) {
	const n = 8
	x := make([][]float64, n)
	var energy float64
	for i := range x {
		x[i] = make([]float64, n)
		for j := range x[i] {
			x[i][j] = float64((i*7+j*3)%11) - 5
			energy += x[i][j] * x[i][j]
		}
	}

	var got float64
	for _, row := range dct2(x, orthonormalScale(n)) {
		for _, v := range row {
			got += v * v
		}
	}
	assert.InDelta(t, energy, got, 1e-6)
}

func TestFFT2_ImpulseAndCentering(t *testing.T) {
	const n = 8
	impulse := make([][]float64, n)
	for i := range impulse {
		impulse[i] = make([]float64, n)
	}
	impulse[0][0] = 1
	for _, row := range fft2(impulse) {
		for _, v := range row {
			assert.InDelta(t, 1, real(v), 1e-12)
			assert.InDelta(t, 0, imag(v), 1e-12)
		}
	}

	flat := make([][]float64, n)
	for i := range flat {
		flat[i] = make([]float64, n)
		for j := range flat[i] {
			flat[i][j] = 1
		}
	}
	spectrum := fft2(flat)
	assert.InDelta(t, n*n, real(spectrum[n/2][n/2]), 1e-9)
	assert.InDelta(t, 0, cmplx.Abs(spectrum[0][0]), 1e-9)
}

func TestExifReader_Extract(t *testing.T) {
	reader := NewExifReader()
	img := testImage(32, 32)

	tests := []struct {
		name         string
		data         []byte
		wantFormat   string
		wantExpected bool
	}{
		{name: "png without metadata", data: encodePNG(t, img), wantFormat: "PNG", wantExpected: true},
		{name: "jpeg without metadata", data: encodeJPEG(t, img), wantFormat: "JPEG", wantExpected: false},
		{name: "garbage", data: []byte("hello"), wantFormat: "UNKNOWN", wantExpected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := reader.Extract(context.Background(), tt.data)
			require.NoError(t, err)

			assert.True(t, summary.Stripped)
			assert.Equal(t, tt.wantExpected, summary.StrippedExpected)
			assert.Equal(t, tt.wantFormat, summary.Format)
			assert.Nil(t, summary.Camera)
			assert.False(t, summary.GPS)
		})
	}
}

func TestExifReader_Extract_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExifReader().Extract(ctx, encodeJPEG(t, testImage(32, 32)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "PNG", DetectFormat(encodePNG(t, testImage(4, 4))))
	assert.Equal(t, "JPEG", DetectFormat(encodeJPEG(t, testImage(4, 4))))
	assert.Equal(t, "UNKNOWN", DetectFormat(nil))
}
