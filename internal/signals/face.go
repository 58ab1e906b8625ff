package signals

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"

	"github.com/cuongbtq/truthlens/internal/domain"
	"github.com/cuongbtq/truthlens/internal/inference"
)

const (
	// DefaultFacePadding is added on every side of the detected face box
	DefaultFacePadding = 30

	// NoFaceMessage is reported when the image has no detectable face
	NoFaceMessage = "No face detected — analyzing full image"

	cropQuality = 95
)

// FaceDetector is the model server face endpoint
type FaceDetector interface {
	DetectFace(ctx context.Context, image []byte) (inference.FaceDetection, error)
}

// FaceCropper finds the most confident face and crops it with padding
type FaceCropper struct {
	detector FaceDetector
	padding  int
}

// NewFaceCropper creates a face cropper
func NewFaceCropper(detector FaceDetector, padding int) *FaceCropper {
	if padding < 0 {
		padding = DefaultFacePadding
	}
	return &FaceCropper{detector: detector, padding: padding}
}

// Extract returns the JPEG encoded face crop, or nil when there is no face
func (f *FaceCropper) Extract(ctx context.Context, data []byte) ([]byte, domain.FaceInfo, error) {
	det, err := f.detector.DetectFace(ctx, data)
	if err != nil {
		return nil, domain.FaceInfo{Message: err.Error()}, fmt.Errorf("face detection: %w", err)
	}
	if det.FacesFound == 0 || det.BBox == nil {
		return nil, domain.FaceInfo{FacesFound: 0, Message: NoFaceMessage}, nil
	}

	img, _, err := decodeImage(data)
	if err != nil {
		return nil, domain.FaceInfo{Message: err.Error()}, err
	}

	rect := padBox(*det.BBox, f.padding, img.Bounds())
	if rect.Empty() {
		return nil, domain.FaceInfo{FacesFound: 0, Message: NoFaceMessage}, nil
	}

	crop := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(crop, crop.Bounds(), img, rect.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, crop, &jpeg.Options{Quality: cropQuality}); err != nil {
		return nil, domain.FaceInfo{Message: err.Error()}, fmt.Errorf("encode face crop: %w", err)
	}

	confidence := math.Round(det.Confidence*100) / 100
	origin := img.Bounds().Min
	return buf.Bytes(), domain.FaceInfo{
		FacesFound: det.FacesFound,
		Confidence: &confidence,
		BBox: &domain.BBox{
			X1: rect.Min.X - origin.X,
			Y1: rect.Min.Y - origin.Y,
			X2: rect.Max.X - origin.X,
			Y2: rect.Max.Y - origin.Y,
		},
		Message: fmt.Sprintf("%d face(s) detected", det.FacesFound),
	}, nil
}

// padBox grows the box by pad on every side and clips it to bounds. Box
// coordinates are relative to the image origin.
func padBox(b inference.BBox, pad int, bounds image.Rectangle) image.Rectangle {
	r := image.Rect(b.X1-pad, b.Y1-pad, b.X2+pad, b.Y2+pad).Add(bounds.Min)
	return r.Intersect(bounds)
}
