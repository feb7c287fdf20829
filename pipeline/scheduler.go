// Package pipeline runs detection on a live frame stream with one worker
// goroutine and at most one pending frame.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Tutortoise/live-detection-service/annotate"
	"github.com/Tutortoise/live-detection-service/detections"
	"github.com/Tutortoise/live-detection-service/models"
	"github.com/Tutortoise/live-detection-service/stats"
)

var (
	ErrStopped         = errors.New("pipeline stopped")
	ErrInterruptedWait = errors.New("interrupted while waiting for detector configuration")
	ErrFrameDropped    = errors.New("frame dropped: inference pending")
	ErrFrameSize       = errors.New("frame size does not match capture size")
)

// queueCapacity covers one pending configuration plus one pending frame.
const queueCapacity = 2

type Options struct {
	// Capture is the fixed frame size delivered by the video source.
	Capture     image.Point
	Model       models.ModelConfig
	Preferences PreferenceSource
	FrameRate   FrameRate
	Sink        Sink
	Palette     *annotate.Palette
	JPEGQuality int
	Log         *logrus.Entry
}

// Scheduler serializes configuration and inference on a single worker. Submit
// never blocks; Configure blocks until the worker reports a status.
type Scheduler struct {
	opts     Options
	selector *detections.Selector
	log      *logrus.Entry
	metrics  *Metrics

	queue chan work
	done  chan struct{}
	wg    sync.WaitGroup

	mu            sync.Mutex
	configPending *configureWork
	framePending  bool
	stopped       bool
	lastStatus    *models.ConfigurationStatus

	stopOnce sync.Once
	stopErr  error

	// Owned by the worker goroutine.
	detector  *detections.Detector
	geometry  detections.Geometry
	renderer  *annotate.Renderer
	stats     *stats.Rolling
	requested models.AccelerationMode
	now       func() time.Time
}

func New(selector *detections.Selector, opts Options) (*Scheduler, error) {
	if selector == nil {
		return nil, errors.New("selector is required")
	}
	if opts.Capture.X <= 0 || opts.Capture.Y <= 0 {
		return nil, fmt.Errorf("invalid capture size %v", opts.Capture)
	}
	if opts.Preferences == nil {
		return nil, errors.New("preference source is required")
	}
	if opts.Sink == nil {
		opts.Sink = SinkFunc(func(Output) error { return nil })
	}
	if opts.Palette == nil {
		opts.Palette = annotate.NewPalette()
	}
	if opts.JPEGQuality == 0 {
		opts.JPEGQuality = annotate.DefaultJPEGQuality
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Scheduler{
		opts:     opts,
		selector: selector,
		log:      opts.Log.WithField("component", "scheduler"),
		metrics:  &Metrics{},
		queue:    make(chan work, queueCapacity),
		done:     make(chan struct{}),
		stats:    stats.NewRolling(),
		now:      time.Now,
	}, nil
}

// Start launches the worker goroutine.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Scheduler) Metrics() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// LastStatus returns the most recent configuration status, if any.
func (s *Scheduler) LastStatus() (models.ConfigurationStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastStatus == nil {
		return models.ConfigurationStatus{}, false
	}
	return *s.lastStatus, true
}

// Submit hands a frame to the worker. The frame is dropped with
// ErrFrameDropped if another frame is still waiting to be dequeued.
func (s *Scheduler) Submit(f Frame) error {
	if f.Image == nil || f.Image.Bounds().Size() != s.opts.Capture {
		s.metrics.add(&s.metrics.rejected)
		return ErrFrameSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	s.metrics.add(&s.metrics.submitted)
	if s.framePending {
		s.metrics.add(&s.metrics.dropped)
		return ErrFrameDropped
	}
	s.framePending = true
	s.queue <- frameWork{frame: f}
	return nil
}

// Configure asks the worker to rebuild the detector from the current
// preferences and waits for the outcome. Callers arriving while a request is
// still queued share it and receive the same status.
func (s *Scheduler) Configure(ctx context.Context) (models.ConfigurationStatus, error) {
	ch := make(chan configResult, 1)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return models.ConfigurationStatus{Message: MsgStopped}, ErrStopped
	}
	cw := s.configPending
	if cw == nil {
		cw = &configureWork{id: uuid.NewString()}
		s.configPending = cw
		s.queue <- cw
		s.metrics.add(&s.metrics.configurations)
	}
	cw.waiters = append(cw.waiters, ch)
	s.mu.Unlock()

	select {
	case r := <-ch:
		return r.status, r.err
	case <-ctx.Done():
		return models.ConfigurationStatus{ID: cw.id, Message: MsgInterruptedWait}, fmt.Errorf("%w: %v", ErrInterruptedWait, ctx.Err())
	}
}

// Stop abandons queued work, waits for the unit in flight and releases the
// detector. It is safe to call more than once.
func (s *Scheduler) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		close(s.done)
		s.wg.Wait()
		s.abandonQueued()

		if err := s.detector.Close(); err != nil {
			s.stopErr = err
		}
		s.detector = nil
		s.log.Info("pipeline stopped")
	})
	return s.stopErr
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		default:
		}

		select {
		case <-s.done:
			return
		case w := <-s.queue:
			s.handle(w)
		}
	}
}

func (s *Scheduler) handle(w work) {
	switch w := w.(type) {
	case *configureWork:
		s.mu.Lock()
		if s.configPending == w {
			s.configPending = nil
		}
		s.mu.Unlock()
		s.configure(w)
	case frameWork:
		s.mu.Lock()
		s.framePending = false
		s.mu.Unlock()
		s.process(w.frame)
	}
}

func (s *Scheduler) abandonQueued() {
	for {
		select {
		case w := <-s.queue:
			s.mu.Lock()
			if cw, ok := w.(*configureWork); ok {
				if s.configPending == cw {
					s.configPending = nil
				}
				waiters := cw.waiters
				cw.waiters = nil
				s.mu.Unlock()
				deliver(waiters, configResult{
					status: models.ConfigurationStatus{ID: cw.id, Message: MsgStopped},
					err:    ErrStopped,
				})
				continue
			}
			s.framePending = false
			s.mu.Unlock()
		default:
			return
		}
	}
}

func (s *Scheduler) configure(w *configureWork) {
	prefs := s.opts.Preferences.Preferences()
	requested := prefs.Acceleration
	cfg := s.opts.Model.WithAcceleration(requested)
	log := s.log.WithFields(logrus.Fields{"id": w.id, "requested": requested.Name()})

	previous := s.detector
	s.detector, s.renderer = nil, nil

	status := models.ConfigurationStatus{ID: w.id, Mode: requested}
	det, err := s.selector.Resolve(cfg, previous)
	if err == nil {
		var geom detections.Geometry
		geom, err = detections.NewGeometry(s.opts.Capture, det.InputSize())
		if err != nil {
			s.release(det, log)
		} else {
			s.detector = det
			s.geometry = geom
			s.renderer = annotate.NewRenderer(geom, s.opts.Palette)
			s.requested = requested
			s.stats.Reset()
		}
	}

	if err != nil {
		s.metrics.add(&s.metrics.configFailures)
		status.Message = configurationFailedMessage(requested.String(), err)
		log.WithError(err).Error("detector configuration failed")
	} else {
		status.Success = true
		status.Mode = s.detector.Mode()
		status.Message = configuredMessage(models.DisplayName(requested, status.Mode))
		log.WithField("resolved", status.Mode.Name()).Info("detector configured")
	}

	s.mu.Lock()
	s.lastStatus = &status
	waiters := w.waiters
	w.waiters = nil
	s.mu.Unlock()
	deliver(waiters, configResult{status: status})
}

// release closes det. A close failure is logged, not returned.
func (s *Scheduler) release(det *detections.Detector, log *logrus.Entry) {
	if err := det.Close(); err != nil {
		log.WithError(err).Warn("releasing detector")
	}
}

func (s *Scheduler) process(f Frame) {
	if !s.detector.Loaded() {
		s.passthrough(f)
		return
	}

	threshold := s.opts.Preferences.Preferences().Confidence
	timings := models.ProcessingTimings{Seq: f.Seq}
	start := s.now()

	input := s.geometry.Prepare(f.Image)
	timings.Prepare = s.now().Sub(start)

	inferStart := s.now()
	dets, err := s.detector.Detect(input)
	timings.Inference = s.now().Sub(inferStart)
	if err != nil {
		s.metrics.add(&s.metrics.failed)
		s.log.WithError(err).WithField("seq", f.Seq).Error("inference failed")
		return
	}
	s.stats.Add(timings.Inference)

	annotateStart := s.now()
	img, kept, err := s.renderer.Annotate(f.Image, dets, threshold, s.opts.JPEGQuality)
	timings.Annotate = s.now().Sub(annotateStart)
	if err != nil {
		s.metrics.add(&s.metrics.failed)
		s.log.WithError(err).WithField("seq", f.Seq).Error("annotating frame")
		return
	}
	timings.Total = s.now().Sub(start)
	s.metrics.add(&s.metrics.processed)
	s.logTimings(timings, len(kept))

	s.publish(Output{
		Seq:        f.Seq,
		Image:      img,
		Stats:      s.currentStats(),
		Detections: kept,
	})
}

func (s *Scheduler) passthrough(f Frame) {
	img, err := annotate.EncodeJPEG(f.Image, s.opts.JPEGQuality)
	if err != nil {
		s.log.WithError(err).WithField("seq", f.Seq).Error("encoding passthrough frame")
		return
	}
	s.metrics.add(&s.metrics.processed)
	s.publish(Output{Seq: f.Seq, Image: img, Detections: []models.Detection{}})
}

func (s *Scheduler) publish(o Output) {
	if err := s.opts.Sink.Publish(o); err != nil {
		s.log.WithError(err).WithField("seq", o.Seq).Error("publishing output")
	}
}

func (s *Scheduler) currentStats() *models.InferenceStats {
	avg, _ := s.stats.AverageLatency()
	st := &models.InferenceStats{
		InferenceTimeMs: avg.Milliseconds(),
		FramesPerSecond: s.stats.FramesPerSecond(),
		Acceleration:    models.DisplayName(s.requested, s.detector.Mode()),
	}
	if s.opts.FrameRate != nil {
		st.RequestedFramesPerSecond = s.opts.FrameRate.RequestedFramesPerSecond()
	}
	return st
}

func (s *Scheduler) logTimings(t models.ProcessingTimings, kept int) {
	if !s.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	s.log.WithFields(logrus.Fields{
		"seq":        t.Seq,
		"prepare":    t.Prepare,
		"inference":  t.Inference,
		"annotate":   t.Annotate,
		"total":      t.Total,
		"detections": kept,
	}).Debug("frame processed")
}
