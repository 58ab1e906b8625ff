package reverse

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"time"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/webp"

	"github.com/cuongbtq/truthlens/internal/domain"
)

const (
	// matchThreshold is the largest dHash Hamming distance still treated as
	// the same picture
	matchThreshold = 10

	// DefaultIndexCapacity bounds the number of remembered uploads
	DefaultIndexCapacity = 10000

	localScheme = "truthlens://jobs/"
)

type indexEntry struct {
	hash     *goimagehash.ImageHash
	jobID    string
	filename string
	at       time.Time
}

// LocalIndex finds earlier uploads that are perceptually the same picture.
// It is safe for concurrent use.
type LocalIndex struct {
	mu       sync.RWMutex
	entries  []indexEntry
	capacity int
	now      func() time.Time
}

// NewLocalIndex creates an empty index. The oldest entries are dropped once
// capacity is reached.
func NewLocalIndex(capacity int) *LocalIndex {
	if capacity <= 0 {
		capacity = DefaultIndexCapacity
	}
	return &LocalIndex{
		capacity: capacity,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (x *LocalIndex) Name() string { return "local" }

// Add remembers an analyzed upload
func (x *LocalIndex) Add(jobID, filename string, data []byte) error {
	hash, err := hashImage(data)
	if err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if len(x.entries) >= x.capacity {
		x.entries = x.entries[1:]
	}
	x.entries = append(x.entries, indexEntry{
		hash:     hash,
		jobID:    jobID,
		filename: filename,
		at:       x.now(),
	})
	return nil
}

// Len returns the number of indexed uploads
func (x *LocalIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Search returns earlier uploads within the match threshold, newest first
func (x *LocalIndex) Search(_ context.Context, q Query) ([]domain.SearchResult, error) {
	if len(q.Image) == 0 {
		return nil, nil
	}
	hash, err := hashImage(q.Image)
	if err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	var results []domain.SearchResult
	for i := len(x.entries) - 1; i >= 0; i-- {
		e := x.entries[i]
		dist, err := hash.Distance(e.hash)
		if err != nil || dist > matchThreshold {
			continue
		}
		date := e.at.Format(time.DateOnly)
		results = append(results, domain.SearchResult{
			URL:   localScheme + e.jobID,
			Title: fmt.Sprintf("Previously analyzed upload %q", e.filename),
			Date:  &date,
		})
	}
	return results, nil
}

func hashImage(data []byte) (*goimagehash.ImageHash, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return nil, fmt.Errorf("hash image: %w", err)
	}
	return hash, nil
}
