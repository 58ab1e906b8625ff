package signals

import (
	"context"
	"fmt"

	"github.com/cuongbtq/truthlens/internal/domain"
)

// ModelHandle names a model hosted by the model server
type ModelHandle struct {
	Name string
}

// Scorer is the model server scoring endpoint
type Scorer interface {
	Score(ctx context.Context, model string, image []byte) (float64, error)
}

// HeatmapRenderer is the model server Grad-CAM endpoint
type HeatmapRenderer interface {
	GradCAM(ctx context.Context, model string, image []byte) (string, error)
}

// ModelDetector scores images with one hosted model
type ModelDetector struct {
	scorer Scorer
	handle ModelHandle
}

// NewModelDetector creates a detector for the given model
func NewModelDetector(scorer Scorer, handle ModelHandle) *ModelDetector {
	return &ModelDetector{scorer: scorer, handle: handle}
}

// Handle returns the model this detector uses
func (d *ModelDetector) Handle() ModelHandle {
	return d.handle
}

// Score returns the clamped 0-100 suspicion score
func (d *ModelDetector) Score(ctx context.Context, image []byte) (float64, error) {
	score, err := d.scorer.Score(ctx, d.handle.Name, image)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", d.handle.Name, err)
	}
	return domain.ClampScore(score), nil
}

// Visualizer renders Grad-CAM heatmaps. It is given its own client so heavy
// visualization calls do not share a connection pool with scoring.
type Visualizer struct {
	renderer HeatmapRenderer
}

// NewVisualizer creates a visualizer
func NewVisualizer(renderer HeatmapRenderer) *Visualizer {
	return &Visualizer{renderer: renderer}
}

// Visualize returns a base64 PNG heatmap for the given model
func (v *Visualizer) Visualize(ctx context.Context, handle ModelHandle, image []byte) (string, error) {
	heatmap, err := v.renderer.GradCAM(ctx, handle.Name, image)
	if err != nil {
		return "", fmt.Errorf("gradcam %s: %w", handle.Name, err)
	}
	return heatmap, nil
}
