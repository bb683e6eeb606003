/*
NAME
  config.go

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package config contains the configuration settings for the timelapse
// capture pipeline.
package config

import (
	"github.com/ausocean/utils/logging"
)

// Enums to define inputs and queue modes.
const (
	// Indicates no option has been set.
	NothingDefined = iota

	// Inputs.
	InputFile
	InputManual

	// Queue modes.
	QueueModeQueued
	QueueModeDirect
)

// Resolution represents an image sensor frame size.
type Resolution uint8

// The frame sizes supported by the capture pipeline, ordered smallest to
// largest. These mirror the sensor's discrete frame size set.
const (
	ResVGA  Resolution = iota // 640x480
	ResSVGA                   // 800x600
	ResXGA                    // 1024x768
	ResSXGA                   // 1280x1024
	ResUXGA                   // 1600x1200
	ResQXGA                   // 2048x1536
)

// resolutionDims maps each Resolution to its pixel dimensions.
var resolutionDims = map[Resolution][2]int{
	ResVGA:  {640, 480},
	ResSVGA: {800, 600},
	ResXGA:  {1024, 768},
	ResSXGA: {1280, 1024},
	ResUXGA: {1600, 1200},
	ResQXGA: {2048, 1536},
}

// Dims returns the pixel width and height of the Resolution.
func (r Resolution) Dims() (w, h int) {
	d, ok := resolutionDims[r]
	if !ok {
		d = resolutionDims[ResVGA]
	}
	return d[0], d[1]
}

// Valid reports whether the Resolution is within the supported set.
func (r Resolution) Valid() bool {
	_, ok := resolutionDims[r]
	return ok
}

// Unspecified is the wildcard value for the leap time fields, meaning the
// field does not constrain the next capture instant.
const Unspecified = -1

// Config provides parameters relevant to a capture pipeline instance. A new
// config must be passed to the constructor. Default values for these fields
// are defined in variables.go.
type Config struct {
	// Logger holds an implementation of the logging.Logger interface. This
	// must be set for the pipeline to work correctly.
	Logger logging.Logger

	// LogLevel is the pipeline logging verbosity level.
	// Valid values are defined by enums from the logging package:
	// logging.Debug, logging.Info, logging.Warning, logging.Error.
	LogLevel int8

	Suppress bool // Holds logger suppression state.

	// Input defines the image data source.
	//
	// Valid values are defined by enums:
	// InputFile:
	//		Serve JPEG frames from files under InputPath.
	// InputManual:
	//		Frames are supplied programmatically (testing).
	Input uint8

	// InputPath defines the frame source location for InputFile input.
	InputPath string

	// Loop determines whether InputFile input restarts from its first frame
	// after serving its last, rather than reporting no frame.
	Loop bool

	// OutputDir is the mounted storage path under which per track
	// directories and their container files are created.
	OutputDir string

	// TrackID identifies the track (session directory) captures are
	// written to.
	TrackID uint

	// Resolution is the sensor frame size used for capture. Changes are
	// applied at session boundaries only, followed by an autofocus pass.
	Resolution Resolution

	// JPEGQuality is a value 0-100 inclusive controlling JPEG compression
	// of captured frames. Applied at session boundaries.
	JPEGQuality int

	// Duration bounds a capture session in seconds. Semantics:
	//	== 0: a single frame is captured per session.
	//	 > 0: frames are captured until Duration seconds have elapsed.
	//	 < 0: frames are captured until the session is stopped externally.
	Duration int

	// Period is the fixed interval in seconds between scheduled captures.
	// Zero selects leap time scheduling via the Leap* fields.
	Period uint

	// LeapDay, LeapHour and LeapMinute specify a calendar-style capture
	// schedule used when Period is zero. Each field is independently
	// Unspecified (-1) or a concrete value.
	LeapDay    int
	LeapHour   int
	LeapMinute int

	// Timezone is the fixed UTC offset in hours used to interpret the leap
	// time fields. No DST transitions are applied.
	Timezone int

	// WindowStart and WindowEnd bound the allowed capture window as Unix
	// seconds. Zero values leave the window unbounded.
	WindowStart int64
	WindowEnd   int64

	// AutofocusOnce determines whether autofocus runs once per track (true)
	// or before every capture session (false).
	AutofocusOnce bool

	// OverwriteSaved determines whether the first session of a track opens
	// its container with truncating semantics rather than appending.
	OverwriteSaved bool

	// QueueMode selects the write-behind behavior.
	//
	// Valid values are defined by enums:
	// QueueModeQueued:
	//		Frames are buffered in a bounded in-memory queue and written to
	//		storage by a background routine.
	// QueueModeDirect:
	//		Frames are written to storage synchronously on the capture
	//		routine.
	QueueMode uint8

	// QueueCapacity is the write-behind queue byte budget. Frames that
	// would grow the queue past this are dropped and counted.
	QueueCapacity uint

	// IdleSleep is the seconds of control inactivity after which the
	// control loop powers down, when no capture sequence is running.
	IdleSleep uint

	// CheckpointPath is the location of the fixed persistent region used to
	// checkpoint scheduler state before long sleeps.
	CheckpointPath string
}

// Validate checks for any errors in the config fields and defaults settings
// if particular parameters have not been defined.
func (c *Config) Validate() error {
	for _, v := range Variables {
		if v.Validate != nil {
			v.Validate(c)
		}
	}
	return nil
}

// Update takes a map of configuration variable names and their corresponding
// values, parses the string values converting into the correct type, and then
// sets the config struct fields as appropriate.
func (c *Config) Update(vars map[string]string) {
	for _, value := range Variables {
		if v, ok := vars[value.Name]; ok && value.Update != nil {
			value.Update(c, v)
		}
	}
}

// LogInvalidField logs the defaulting of a bad or unset config field.
func (c *Config) LogInvalidField(name string, def interface{}) {
	c.Logger.Info(name+" bad or unset, defaulting", name, def)
}
