package domain

import "math"

// NeutralScore is used for any numeric signal whose collaborator failed
const NeutralScore = 50.0

// ClampScore bounds a score to [0,100]
func ClampScore(v float64) float64 {
	if math.IsNaN(v) {
		return NeutralScore
	}
	return math.Max(0, math.Min(100, v))
}

// ExifSummary is the metadata record extracted from the original upload
type ExifSummary struct {
	Stripped         bool    `json:"stripped"`
	StrippedExpected bool    `json:"stripped_expected"`
	Format           string  `json:"format"`
	Camera           *string `json:"camera"`
	Software         *string `json:"software"`
	DateTaken        *string `json:"date_taken"`
	GPS              bool    `json:"gps"`
}

// Suspicious reports whether missing metadata should count as a signal.
// Formats that normally carry no metadata never do.
func (e ExifSummary) Suspicious() bool {
	return e.Stripped && !e.StrippedExpected
}

// SearchResult is one reverse image search hit
type SearchResult struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Thumbnail string  `json:"thumbnail"`
	Date      *string `json:"date"`
}

// BBox is a face bounding box in pixel coordinates of the original image
type BBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// FaceInfo describes the outcome of face extraction
type FaceInfo struct {
	FacesFound int      `json:"faces_found"`
	Confidence *float64 `json:"confidence"`
	BBox       *BBox    `json:"bbox"`
	Message    string   `json:"message"`
}

// SignalBundle holds every signal gathered for one job. It is owned by the
// orchestrator run that builds it.
type SignalBundle struct {
	CNN       float64        `json:"cnn"`
	Semantic  float64        `json:"semantic"`
	Frequency float64        `json:"frequency"`
	Ensemble  float64        `json:"ensemble"`
	Exif      ExifSummary    `json:"exif"`
	Search    []SearchResult `json:"search"`
	Filename  string         `json:"filename"`
	Face      FaceInfo       `json:"face"`
}

// NewSignalBundle returns a bundle with every numeric signal at neutral
func NewSignalBundle(filename string) SignalBundle {
	return SignalBundle{
		CNN:       NeutralScore,
		Semantic:  NeutralScore,
		Frequency: NeutralScore,
		Ensemble:  NeutralScore,
		Search:    []SearchResult{},
		Filename:  filename,
	}
}
