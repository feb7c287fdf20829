package main

import (
	"sync"
	"time"

	"github.com/Tutortoise/live-detection-service/models"
	"github.com/Tutortoise/live-detection-service/pipeline"
)

// LiveSlot holds the latest published frame and statistics. Every Publish
// replaces both; no history is kept.
type LiveSlot struct {
	mu      sync.RWMutex
	image   []byte
	stats   *models.InferenceStats
	seq     uint64
	updated time.Time
	now     func() time.Time
}

var _ pipeline.Sink = (*LiveSlot)(nil)

func NewLiveSlot() *LiveSlot {
	return &LiveSlot{now: time.Now}
}

func (l *LiveSlot) Publish(o pipeline.Output) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.image = o.Image
	l.stats = o.Stats
	l.seq = o.Seq
	l.updated = l.now()
	return nil
}

// Image returns the latest JPEG, or false before the first frame.
func (l *LiveSlot) Image() ([]byte, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.image, l.image != nil
}

// Stats returns the statistics published with the latest frame. They are
// absent while frames pass through unannotated.
func (l *LiveSlot) Stats() (models.InferenceStats, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.stats == nil {
		return models.InferenceStats{}, false
	}
	return *l.stats, true
}

func (l *LiveSlot) Updated() (seq uint64, at time.Time) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq, l.updated
}
