/*
DESCRIPTION
  file.go provides an implementation of the ImageSource interface for JPEG
  files on disk.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package file provides an implementation of ImageSource for JPEG files. The
// source serves a single JPEG file, or the JPEG files of a directory in name
// order, one file per frame.
package file

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ausocean/tlcam/capture/config"
	"github.com/ausocean/tlcam/device"
	"github.com/ausocean/utils/logging"
)

// maxFrames is the number of frames that may be held unreleased at once,
// mirroring the small fixed framebuffer count of a camera sensor.
const maxFrames = 2

var errNoInputPath = errors.New("InputPath bad or unset, no frame files to serve")

// JPEGSource is an implementation of the ImageSource interface for JPEG files
// on disk.
type JPEGSource struct {
	path        string
	paths       []string
	next        int
	loop        bool
	isRunning   bool
	log         logging.Logger
	set         bool
	outstanding int
	mu          sync.Mutex
}

// New returns a new JPEGSource.
func New(l logging.Logger) *JPEGSource { return &JPEGSource{log: l} }

// NewWith returns a new JPEGSource with required params provided i.e. the Set
// method does not need to be called.
func NewWith(l logging.Logger, path string, loop bool) *JPEGSource {
	return &JPEGSource{log: l, path: path, loop: loop, set: true}
}

// Name returns the name of the device.
func (s *JPEGSource) Name() string {
	return "File"
}

// Set will take a Config struct, check the validity of the relevant fields
// and then performs any configuration necessary. The InputPath and Loop
// fields are considered; a missing InputPath is collected in the returned
// MultiError and leaves the source unset.
func (s *JPEGSource) Set(c config.Config) error {
	var errs device.MultiError

	if c.InputPath == "" {
		errs = append(errs, errNoInputPath)
	}

	s.mu.Lock()
	s.path = c.InputPath
	s.loop = c.Loop
	s.set = c.InputPath != ""
	s.mu.Unlock()

	if len(errs) != 0 {
		return errs
	}
	return nil
}

// Start resolves the frame file list from the InputPath of the config; either
// the single named JPEG file, or the JPEG files of the named directory in
// name order.
func (s *JPEGSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return errors.New("JPEGSource has not been set with config")
	}

	fi, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("could not stat input path: %w", err)
	}

	s.paths = s.paths[:0]
	if !fi.IsDir() {
		s.paths = append(s.paths, s.path)
	} else {
		entries, err := os.ReadDir(s.path)
		if err != nil {
			return fmt.Errorf("could not read input directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".jpg", ".jpeg":
				s.paths = append(s.paths, filepath.Join(s.path, e.Name()))
			}
		}
	}
	if len(s.paths) == 0 {
		return fmt.Errorf("no JPEG files at input path: %s", s.path)
	}

	s.next = 0
	s.outstanding = 0
	s.isRunning = true
	return nil
}

// Stop stops the source such that any further Frame calls will fail.
func (s *JPEGSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isRunning = false
	return nil
}

// Frame serves the next file as a frame. When the file list is exhausted and
// loop is set, serving restarts from the first file; otherwise ErrNoFrame is
// returned. ErrNoFrame is also returned while maxFrames frames are held
// unreleased, and for a file that does not parse as JPEG, which is skipped.
func (s *JPEGSource) Frame() (*device.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return nil, errors.New("JPEG source is stopped, JPEGSource not started")
	}

	if s.outstanding >= maxFrames {
		s.log.Debug("frame buffers exhausted", "held", s.outstanding)
		return nil, device.ErrNoFrame
	}

	if s.next >= len(s.paths) {
		if !s.loop {
			return nil, device.ErrNoFrame
		}
		s.log.Info("looping input files")
		s.next = 0
	}

	path := s.paths[s.next]
	s.next++

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read frame file: %w", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		s.log.Warning("skipping file that does not parse as JPEG", "path", path, "error", err)
		return nil, device.ErrNoFrame
	}

	s.outstanding++
	return &device.Frame{Width: cfg.Width, Height: cfg.Height, Data: data}, nil
}

// Release hands a frame back to the source.
func (s *JPEGSource) Release(f *device.Frame) {
	if f == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outstanding > 0 {
		s.outstanding--
	}
}

// Autofocus satisfies the ImageSource interface; a file backed source has no
// focus mechanism.
func (s *JPEGSource) Autofocus() error {
	s.log.Debug("autofocus requested on file source")
	return nil
}

// IsRunning is used to determine if the JPEGSource device is running.
func (s *JPEGSource) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
