/*
DESCRIPTION
  device.go provides ImageSource, an interface that describes a configurable
  image sensor that can be started and stopped from which captured frames may
  be obtained.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package device provides an interface and implementations for image sources
// that can be started and stopped from which frames can be obtained.
package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ausocean/tlcam/capture/config"
)

// Frame is a single captured image. Data holds the encoded JPEG bytes and
// Width and Height the pixel dimensions of the frame. Frames are owned by
// their source; after use they must be handed back with Release so the
// underlying buffer can be reused.
type Frame struct {
	Width  int
	Height int
	Data   []byte
}

// ErrNoFrame is returned by Frame when the source cannot currently supply an
// image, e.g. the sensor missed a capture or all frame buffers are held. This
// is a per-frame condition, not a failure of the source.
var ErrNoFrame = errors.New("no frame available")

// ImageSource describes a configurable image sensor from which frames can be
// obtained.
type ImageSource interface {
	// Name returns the name of the ImageSource.
	Name() string

	// Set allows for configuration of the ImageSource using a Config struct.
	// All, some or none of the fields of the Config struct may be used for
	// configuration by an implementation. An implementation should specify
	// what fields are considered.
	Set(c config.Config) error

	// Start will start the ImageSource capturing; after which the Frame
	// method may be called to obtain images.
	Start() error

	// Stop will stop the ImageSource from capturing. From this point calls
	// to Frame will no longer be successful.
	Stop() error

	// IsRunning is used to determine if the source is running.
	IsRunning() bool

	// Frame returns the next captured frame. ErrNoFrame indicates a missed
	// capture; any other error indicates source failure.
	Frame() (*Frame, error)

	// Release hands a frame obtained from Frame back to the source for
	// buffer reuse. A frame must not be used after release.
	Release(f *Frame)

	// Autofocus runs a blocking focus pass on the sensor.
	Autofocus() error
}

// MultiError implements the built in error interface. MultiError is used here
// to collect multi errors during validation of configuration parameters for
// ImageSources.
type MultiError []error

func (me MultiError) Error() string {
	if len(me) == 0 {
		panic("device: invalid use of MultiError")
	}
	return fmt.Sprintf("%v", []error(me))
}

// ManualSource is an implementation of the ImageSource interface that
// represents a manual input mechanism, i.e. frames are supplied to this
// source programmatically (ManualSource has a Write method, unlike other
// implementations). Frames are queued in memory and served in FIFO order;
// a Frame call with no queued frame returns ErrNoFrame, emulating a missed
// sensor capture. This is intended to make testing of the capture pipeline
// easier.
type ManualSource struct {
	mu        sync.Mutex
	isRunning bool
	frames    []*Frame
}

// NewManualSource provides a new ManualSource.
func NewManualSource() *ManualSource {
	return &ManualSource{}
}

// Name returns the name of ManualSource i.e. "ManualSource".
func (m *ManualSource) Name() string { return "ManualSource" }

// Set is a stub to satisfy the ImageSource interface; no configuration fields
// are required by ManualSource.
func (m *ManualSource) Set(c config.Config) error { return nil }

// Start sets the ManualSource isRunning flag to true. This is mostly here
// just to satisfy the ImageSource interface.
func (m *ManualSource) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isRunning = true
	return nil
}

// Stop discards any queued frames and sets the isRunning flag to false.
func (m *ManualSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = nil
	m.isRunning = false
	return nil
}

// IsRunning returns the value of the isRunning flag to indicate if Start has
// been called (and Stop has not been called after).
func (m *ManualSource) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRunning
}

// Frame returns the next queued frame, or ErrNoFrame if the queue is empty.
func (m *ManualSource) Frame() (*Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isRunning {
		return nil, errors.New("manual source has not been started, can't get frame")
	}
	if len(m.frames) == 0 {
		return nil, ErrNoFrame
	}
	f := m.frames[0]
	m.frames = m.frames[1:]
	return f, nil
}

// Release is a no-op; manual frames are not pooled.
func (m *ManualSource) Release(f *Frame) {}

// Autofocus is a stub to satisfy the ImageSource interface.
func (m *ManualSource) Autofocus() error { return nil }

// Write queues p as a frame with the given dimensions, to be served by a
// subsequent Frame call. The bytes are copied. Frames may be queued before
// the source is started; Stop discards them.
func (m *ManualSource) Write(p []byte, w, h int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := make([]byte, len(p))
	copy(d, p)
	m.frames = append(m.frames, &Frame{Width: w, Height: h, Data: d})
	return nil
}
