package pipeline

import (
	"context"
	"errors"

	"github.com/cuongbtq/truthlens/internal/domain"
	"github.com/cuongbtq/truthlens/internal/reverse"
	"github.com/cuongbtq/truthlens/internal/signals"
)

// FaceExtractor crops the most confident face. A nil crop means no face.
type FaceExtractor interface {
	Extract(ctx context.Context, image []byte) ([]byte, domain.FaceInfo, error)
}

// Detector produces a 0-100 suspicion score
type Detector interface {
	Score(ctx context.Context, image []byte) (float64, error)
}

// ModelDetector is a detector backed by a hosted model
type ModelDetector interface {
	Detector
	Handle() signals.ModelHandle
}

// Visualizer renders a heatmap for a model
type Visualizer interface {
	Visualize(ctx context.Context, handle signals.ModelHandle, image []byte) (string, error)
}

// ExifExtractor summarizes image metadata. Unreadable metadata is reported as
// stripped, so an error only means ctx ended first.
type ExifExtractor interface {
	Extract(ctx context.Context, image []byte) (domain.ExifSummary, error)
}

// ReverseSearcher looks the image up on the web
type ReverseSearcher interface {
	Search(ctx context.Context, q reverse.Query) ([]domain.SearchResult, error)
}

// Indexer remembers analyzed uploads for later reverse lookups
type Indexer interface {
	Add(jobID, filename string, image []byte) error
}

// Publisher pushes progress events to the job's observer
type Publisher interface {
	Publish(ctx context.Context, jobID string, event domain.Event)
}

// Collaborators are the signal sources the orchestrator drives. Index is
// optional.
type Collaborators struct {
	Face       FaceExtractor
	CNN        ModelDetector
	Semantic   Detector
	Visualizer Visualizer
	Frequency  Detector
	Exif       ExifExtractor
	Reverse    ReverseSearcher
	Index      Indexer
}

func (c Collaborators) validate() error {
	switch {
	case c.Face == nil:
		return errors.New("face extractor is required")
	case c.CNN == nil:
		return errors.New("cnn detector is required")
	case c.Semantic == nil:
		return errors.New("semantic detector is required")
	case c.Visualizer == nil:
		return errors.New("visualizer is required")
	case c.Frequency == nil:
		return errors.New("frequency detector is required")
	case c.Exif == nil:
		return errors.New("exif extractor is required")
	case c.Reverse == nil:
		return errors.New("reverse searcher is required")
	}
	return nil
}
