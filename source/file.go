// Package source supplies capture frames to the pipeline.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/Tutortoise/live-detection-service/pipeline"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".gif": true}

// Submitter accepts frames without blocking.
type Submitter interface {
	Submit(pipeline.Frame) error
}

type Options struct {
	Dir     string
	FPS     float64
	Loop    bool
	Capture image.Point
	Log     *logrus.Entry
}

// FileSource replays the images in a directory, in name order, as a live
// stream at a fixed frame rate. Every frame is resized to the capture size.
type FileSource struct {
	opts   Options
	frames []string
	log    *logrus.Entry
	now    func() time.Time
}

func NewFileSource(opts Options) (*FileSource, error) {
	if opts.FPS <= 0 {
		return nil, fmt.Errorf("fps must be positive, got %v", opts.FPS)
	}
	if opts.Capture.X <= 0 || opts.Capture.Y <= 0 {
		return nil, fmt.Errorf("invalid capture size %v", opts.Capture)
	}
	frames, err := loadFrames(opts.Dir)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames found in %s", opts.Dir)
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &FileSource{
		opts:   opts,
		frames: frames,
		log:    opts.Log.WithField("component", "source"),
		now:    time.Now,
	}, nil
}

// RequestedFramesPerSecond is the replay rate.
func (s *FileSource) RequestedFramesPerSecond() float64 { return s.opts.FPS }

func (s *FileSource) Len() int { return len(s.frames) }

// Run submits one frame per tick until ctx is done, or until the directory
// has been played once when looping is off.
func (s *FileSource) Run(ctx context.Context, sub Submitter) error {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.opts.FPS))
	defer ticker.Stop()

	var seq uint64
	idx := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		path := s.frames[idx]
		img, err := s.decode(path)
		if err != nil {
			s.log.WithError(err).WithField("path", path).Warn("skipping unreadable frame")
		} else {
			seq++
			s.submit(sub, pipeline.Frame{Image: img, Seq: seq, Captured: s.now()})
		}

		idx++
		if idx < len(s.frames) {
			continue
		}
		if !s.opts.Loop {
			s.log.WithField("frames", seq).Info("replay finished")
			return nil
		}
		idx = 0
	}
}

func (s *FileSource) submit(sub Submitter, f pipeline.Frame) {
	err := sub.Submit(f)
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrFrameDropped):
		s.log.WithField("seq", f.Seq).Debug("frame dropped")
	default:
		s.log.WithError(err).WithField("seq", f.Seq).Warn("frame rejected")
	}
}

func (s *FileSource) decode(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	if img.Bounds().Size() != s.opts.Capture {
		return imaging.Resize(img, s.opts.Capture.X, s.opts.Capture.Y, imaging.Linear), nil
	}
	return img, nil
}

// loadFrames returns the sorted image paths in dir.
func loadFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}
	var frames []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		frames = append(frames, filepath.Join(dir, e.Name()))
	}
	sort.Strings(frames)
	return frames, nil
}
