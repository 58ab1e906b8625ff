package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/truthlens/internal/domain"
	"github.com/cuongbtq/truthlens/internal/reverse"
	"github.com/cuongbtq/truthlens/internal/signals"
)

const (
	faceUnavailableMessage = "Face detection unavailable - analyzing full image"
	exifUnavailableMessage = "Metadata unavailable"
)

func (o *Orchestrator) upload(_ context.Context, r *run) (string, error) {
	return fmt.Sprintf("Received %d KB", len(r.original)/1024), nil
}

type faceCrop struct {
	crop []byte
	info domain.FaceInfo
}

// face narrows the ml step to the face region when one is found
func (o *Orchestrator) face(ctx context.Context, r *run) (string, error) {
	found, err := call(ctx, o, r, domain.StepFace, "face", func(ctx context.Context) (faceCrop, error) {
		c, i, err := o.collab.Face.Extract(ctx, r.original)
		return faceCrop{crop: c, info: i}, err
	})
	if err != nil {
		r.bundle.Face = domain.FaceInfo{Message: faceUnavailableMessage}
		return faceUnavailableMessage, nil
	}

	info := found.info
	if len(found.crop) == 0 {
		info.FacesFound = 0
		info.Message = signals.NoFaceMessage
		r.bundle.Face = info
		return signals.NoFaceMessage, nil
	}

	r.bundle.Face = info
	r.analysis = found.crop
	return fmt.Sprintf("Face region identified (%d found)", info.FacesFound), nil
}

// ml runs both detectors concurrently, then the heatmap for the CNN model
func (o *Orchestrator) ml(ctx context.Context, r *run) (string, error) {
	var (
		cnn, semantic       float64
		cnnErr, semanticErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		cnn, cnnErr = call(ctx, o, r, domain.StepML, "cnn", func(ctx context.Context) (float64, error) {
			return o.collab.CNN.Score(ctx, r.analysis)
		})
		return nil
	})
	g.Go(func() error {
		semantic, semanticErr = call(ctx, o, r, domain.StepML, "semantic", func(ctx context.Context) (float64, error) {
			return o.collab.Semantic.Score(ctx, r.analysis)
		})
		return nil
	})
	_ = g.Wait()

	r.bundle.CNN = scoreOrNeutral(cnn, cnnErr)
	r.bundle.Semantic = scoreOrNeutral(semantic, semanticErr)

	heatmap, heatmapErr := call(ctx, o, r, domain.StepML, "visualizer", func(ctx context.Context) (string, error) {
		return o.collab.Visualizer.Visualize(ctx, o.collab.CNN.Handle(), r.analysis)
	})
	r.heatmap = heatmap

	detail := fmt.Sprintf("CNN score: %s | Semantic score: %s",
		scoreDetail(r.bundle.CNN, cnnErr),
		scoreDetail(r.bundle.Semantic, semanticErr),
	)
	if heatmapErr != nil {
		detail += " | Heatmap unavailable"
	}
	return detail, nil
}

// frequency always analyzes the full frame
func (o *Orchestrator) frequency(ctx context.Context, r *run) (string, error) {
	score, err := call(ctx, o, r, domain.StepFrequency, "frequency", func(ctx context.Context) (float64, error) {
		return o.collab.Frequency.Score(ctx, r.original)
	})
	r.bundle.Frequency = scoreOrNeutral(score, err)
	return "Frequency anomaly: " + scoreDetail(r.bundle.Frequency, err), nil
}

// exif degrades to a summary that is not a signal when extraction is cut short
func (o *Orchestrator) exif(ctx context.Context, r *run) (string, error) {
	summary, err := call(ctx, o, r, domain.StepExif, "exif", func(ctx context.Context) (domain.ExifSummary, error) {
		return o.collab.Exif.Extract(ctx, r.original)
	})
	if err != nil {
		r.bundle.Exif = domain.ExifSummary{Stripped: true, StrippedExpected: true, Format: signals.DetectFormat(r.original)}
		return exifUnavailableMessage, nil
	}
	r.bundle.Exif = summary

	switch {
	case summary.Suspicious():
		return "Metadata stripped - suspicious", nil
	case summary.Stripped:
		return fmt.Sprintf("Metadata stripped (normal for %s)", summary.Format), nil
	default:
		return "Metadata intact", nil
	}
}

// reverse searches before indexing the upload so it never matches itself
func (o *Orchestrator) reverse(ctx context.Context, r *run) (string, error) {
	q := reverse.Query{
		Filename:  r.bundle.Filename,
		Camera:    r.bundle.Exif.Camera,
		DateTaken: r.bundle.Exif.DateTaken,
		Image:     r.original,
	}

	results, _ := call(ctx, o, r, domain.StepReverse, "reverse", func(ctx context.Context) ([]domain.SearchResult, error) {
		return o.collab.Reverse.Search(ctx, q)
	})
	if results == nil {
		results = []domain.SearchResult{}
	}
	r.bundle.Search = results

	if o.collab.Index != nil {
		if err := o.collab.Index.Add(r.jobID, r.bundle.Filename, r.original); err != nil {
			o.logger.Debug("Upload not indexed",
				slog.String("job_id", r.jobID),
				slog.String("error", err.Error()),
			)
		}
	}

	return fmt.Sprintf("%d sources found", len(results)), nil
}

func (o *Orchestrator) agent(ctx context.Context, r *run) (string, error) {
	r.bundle.Ensemble = o.fusion.Ensemble(r.bundle.CNN, r.bundle.Semantic, r.bundle.Frequency)
	r.verdict = o.decider.Decide(ctx, r.bundle)
	return fmt.Sprintf("Verdict ready (%s)", r.verdict.Source), nil
}

func scoreDetail(score float64, err error) string {
	if err != nil {
		return fmt.Sprintf("%.2f%% (neutral)", domain.NeutralScore)
	}
	return fmt.Sprintf("%.2f%%", score)
}

// scoreOrNeutral clamps a collaborator score, or returns the neutral value
// when the collaborator failed
func scoreOrNeutral(score float64, err error) float64 {
	if err != nil {
		return domain.NeutralScore
	}
	return domain.ClampScore(score)
}
