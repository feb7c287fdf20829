package preferences

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Tutortoise/live-detection-service/models"
)

// Holder is the in-memory view of the stored preferences. Reads never touch
// the store.
type Holder struct {
	mu      sync.RWMutex
	current models.Preferences
	store   Store
	log     *logrus.Entry
}

// NewHolder loads the saved preferences, falling back to the defaults when
// none were saved or the saved row is invalid.
func NewHolder(ctx context.Context, store Store, log *logrus.Entry) (*Holder, error) {
	h := &Holder{
		current: models.DefaultPreferences(),
		store:   store,
		log:     log.WithField("component", "preferences"),
	}

	p, err := store.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		h.log.Info("no saved preferences, using defaults")
	case err != nil:
		return nil, err
	case p.Validate() != nil:
		h.log.WithError(p.Validate()).Warn("ignoring invalid saved preferences")
	default:
		h.current = p
	}
	return h, nil
}

func (h *Holder) Preferences() models.Preferences {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Set validates and persists p, then makes it current. It reports whether the
// acceleration mode changed.
func (h *Holder) Set(ctx context.Context, p models.Preferences) (accelerationChanged bool, err error) {
	if err := p.Validate(); err != nil {
		return false, fmt.Errorf("invalid preferences: %w", err)
	}
	if err := h.store.Save(ctx, p); err != nil {
		return false, err
	}

	h.mu.Lock()
	accelerationChanged = h.current.Acceleration != p.Acceleration
	h.current = p
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{
		"confidence":   p.Confidence,
		"acceleration": p.Acceleration.Name(),
	}).Info("preferences updated")
	return accelerationChanged, nil
}
