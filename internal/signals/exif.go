package signals

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/bep/imagemeta"

	"github.com/cuongbtq/truthlens/internal/domain"
)

// formats that normally ship without camera metadata
var strippedExpectedFormats = map[string]bool{
	"PNG":  true,
	"WEBP": true,
	"GIF":  true,
}

// ExifReader summarizes the EXIF block of an image. Anything unreadable is
// reported as stripped.
type ExifReader struct{}

// NewExifReader creates an EXIF reader
func NewExifReader() *ExifReader {
	return &ExifReader{}
}

// Extract returns the EXIF summary of data. The decode stops at the next tag
// once ctx is done.
func (r *ExifReader) Extract(ctx context.Context, data []byte) (domain.ExifSummary, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExifSummary{}, err
	}

	format := DetectFormat(data)
	summary := domain.ExifSummary{Format: format}

	found := false
	_, err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			return ti.Source == imagemeta.EXIF
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			found = true
			handleExifTag(&summary, ti)
			return nil
		},
	})
	if err := ctx.Err(); err != nil {
		return domain.ExifSummary{}, err
	}
	if err != nil || !found {
		return strippedSummary(format), nil
	}

	return summary, nil
}

func strippedSummary(format string) domain.ExifSummary {
	return domain.ExifSummary{
		Stripped:         true,
		StrippedExpected: strippedExpectedFormats[format],
		Format:           format,
	}
}

func handleExifTag(summary *domain.ExifSummary, ti imagemeta.TagInfo) {
	if strings.HasPrefix(ti.Tag, "GPS") {
		summary.GPS = true
		return
	}

	switch ti.Tag {
	case "Model":
		summary.Camera = optionalString(ti.Value)
	case "Software":
		summary.Software = optionalString(ti.Value)
	case "DateTimeOriginal":
		summary.DateTaken = optionalString(ti.Value)
	}
}

func optionalString(v any) *string {
	s := strings.TrimSpace(tagValueString(v))
	if s == "" {
		return nil
	}
	return &s
}

func tagValueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		if len(val) > 0 {
			return val[0]
		}
		return ""
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return s
			}
		}
		return ""
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
