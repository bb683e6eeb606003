/*
DESCRIPTION
  capture.go provides the Capture type, a state machine that owns an image
  source and services capture sessions requested through a polled request
  state; frames are stored to per track TCAM container files through a frame
  writer.

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

// Package capture provides an API for capturing frames from an image source
// and storing them in TCAM container files, either synchronously or through
// a bounded write-behind queue.
package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ausocean/tlcam/capture/config"
	"github.com/ausocean/tlcam/container/tcam"
	"github.com/ausocean/tlcam/device"
	"github.com/ausocean/utils/bitrate"
	"github.com/jonboulle/clockwork"
)

// Misc consts.
const (
	// requestPollPeriod is how often the run routine checks the request state
	// for a pending session, and the pacing between frames within a session.
	requestPollPeriod = 100 * time.Millisecond

	// frameMissTimeout bounds how long a session tolerates consecutive
	// missed frames before ending. Transient misses, e.g. a source whose
	// first frame is not yet ready, are re-polled within this window.
	frameMissTimeout = 2 * time.Second

	// containerFileName is the name of the container file within a track
	// directory.
	containerFileName = "capture.dat"
)

// Status is a point-in-time snapshot of capture state, readable at any time
// through Capture.Status.
type Status struct {
	// Capturing reports whether a session is currently in progress.
	Capturing bool

	// TrackID is the track of the most recent session.
	TrackID uint

	// Images is the number of frames stored by the most recent session.
	Images int

	// Sessions is the cumulative number of completed sessions.
	Sessions int

	// LastWidth, LastHeight and LastSize describe the most recently captured
	// frame.
	LastWidth  int
	LastHeight int
	LastSize   int

	// Dropped is the cumulative number of frames discarded by the write
	// behind queue due to backpressure.
	Dropped uint64

	// Err holds the error that ended the most recent session, or nil if it
	// completed cleanly.
	Err error
}

// Capture provides methods to control capture sessions; providing methods to
// start, stop and change the state of an instance using the Config struct.
// The image source is owned exclusively by the run routine; external callers
// interact through the mutexed request state.
type Capture struct {
	// cfg holds the Capture configuration.
	cfg config.Config

	// input supplies captured frames.
	input device.ImageSource

	// clock is used for sleeps and deadlines so that sessions are testable.
	clock clockwork.Clock

	// mu guards the request state and status below.
	mu        sync.Mutex
	requested bool
	status    Status

	// focused records tracks that have had an autofocus pass, for the
	// autofocus once per track policy.
	focused map[uint]bool

	// written records tracks written this run, so that overwrite semantics
	// apply to the first session of a track only.
	written map[uint]bool

	// lastRes is the resolution of the previous session; a change forces an
	// autofocus pass regardless of policy.
	lastRes config.Resolution
	haveRes bool

	// running is used to keep track of the run routine state between methods.
	running bool

	// wg will be used to wait for the run routine to finish.
	wg sync.WaitGroup

	// bitrate is used for bitrate calculations.
	bitrate bitrate.Calculator

	// stop is used to signal the run routine to terminate.
	stop chan struct{}
}

// New returns a pointer to a new Capture with the desired configuration, and/
// or an error if construction of the new instance was not successful. The
// image source is not started until a session begins.
func New(c config.Config, in device.ImageSource, clk clockwork.Clock) (*Capture, error) {
	if c.Logger == nil {
		return nil, errors.New("no logger provided in config")
	}
	if in == nil {
		return nil, errors.New("no image source provided")
	}
	err := c.Validate()
	if err != nil {
		return nil, fmt.Errorf("could not validate config: %w", err)
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Capture{
		cfg:     c,
		input:   in,
		clock:   clk,
		focused: make(map[uint]bool),
		written: make(map[uint]bool),
	}, nil
}

// Config returns a copy of captures current config.
func (c *Capture) Config() config.Config {
	return c.cfg
}

// Bitrate returns the result of the most recent bitrate check.
func (c *Capture) Bitrate() int {
	return c.bitrate.Bitrate()
}

// Write supplies a frame with the given dimensions to a ManualSource input.
func (c *Capture) Write(p []byte, w, h int) error {
	mi, ok := c.input.(*device.ManualSource)
	if !ok {
		return errors.New("cannot write to anything but ManualSource")
	}
	return mi.Write(p, w, h)
}

// Start starts the run routine, which polls the request state and services
// capture sessions. It does not itself begin a session; see StartSession.
func (c *Capture) Start() error {
	if c.running {
		c.cfg.Logger.Warning("start called, but capture already running")
		return nil
	}

	c.stop = make(chan struct{})

	c.cfg.Logger.Debug("starting capture run routine")
	c.wg.Add(1)
	go c.run()

	c.running = true
	return nil
}

// Stop terminates the run routine, ending any in-progress session first.
func (c *Capture) Stop() {
	if !c.running {
		c.cfg.Logger.Warning("stop called but capture isn't running")
		return
	}

	c.StopSession()
	close(c.stop)

	c.cfg.Logger.Debug("waiting for run routine to finish")
	c.wg.Wait()
	c.cfg.Logger.Info("run routine finished")

	c.running = false
}

// Running reports whether the run routine is active.
func (c *Capture) Running() bool {
	return c.running
}

// StartSession requests a capture session. The session's shape follows the
// Duration config field: zero captures a single frame, positive captures
// frames for Duration seconds, negative captures frames until StopSession.
// The request is picked up by the run routine within its poll period.
func (c *Capture) StartSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requested = true
}

// StopSession withdraws the session request, ending an in-progress session at
// the next frame boundary.
func (c *Capture) StopSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requested = false
}

// Status returns a snapshot of the capture state.
func (c *Capture) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Update takes a map of variables and their values and edits the current
// config if the variables are recognised as valid parameters. The run routine
// is stopped for the re-config; the caller restarts it when ready.
func (c *Capture) Update(vars map[string]string) error {
	if c.running {
		c.cfg.Logger.Debug("capture running; stopping for re-config")
		c.Stop()
		c.cfg.Logger.Info("capture was running; stopped for re-config")
	}

	c.cfg.Logger.Debug("checking vars from settings", "vars", vars)
	c.cfg.Update(vars)
	err := c.cfg.Validate()
	if err != nil {
		return fmt.Errorf("could not validate config: %w", err)
	}
	c.cfg.Logger.Info("finished reconfig")
	return nil
}

// requestedSession reports whether a session request is pending.
func (c *Capture) requestedSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requested
}

// run is the long lived capture routine. It polls the request state and
// services one session per request.
func (c *Capture) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		if !c.requestedSession() {
			c.clock.Sleep(requestPollPeriod)
			continue
		}
		c.runSession()
	}
}

// runSession performs one capture session per the current config; it applies
// sensor configuration, runs autofocus per policy, opens the track container,
// captures and stores frames per the Duration semantics and finalizes the
// container. Errors abort the session and are surfaced through Status.
func (c *Capture) runSession() {
	c.mu.Lock()
	c.status.Capturing = true
	c.status.TrackID = c.cfg.TrackID
	c.status.Images = 0
	c.status.Err = nil
	c.mu.Unlock()

	err := c.session()

	c.mu.Lock()
	c.status.Capturing = false
	c.status.Sessions++
	if err != nil {
		c.status.Err = err
	}
	c.requested = false
	c.mu.Unlock()

	if err != nil {
		c.cfg.Logger.Error("capture session failed", "error", err.Error())
	}
}

func (c *Capture) session() error {
	log := c.cfg.Logger

	err := c.input.Set(c.cfg)
	if err != nil {
		return fmt.Errorf("could not configure image source: %w", err)
	}

	err = c.input.Start()
	if err != nil {
		return fmt.Errorf("could not start image source: %w", err)
	}
	defer func() {
		err := c.input.Stop()
		if err != nil {
			log.Error("could not stop image source", "error", err.Error())
		}
	}()

	// A resolution change invalidates focus, so it forces a pass even under
	// the once per track policy.
	resChanged := c.haveRes && c.lastRes != c.cfg.Resolution
	c.lastRes, c.haveRes = c.cfg.Resolution, true
	if resChanged || !c.cfg.AutofocusOnce || !c.focused[c.cfg.TrackID] {
		log.Debug("running autofocus", "resChanged", resChanged)
		err = c.input.Autofocus()
		if err != nil {
			return fmt.Errorf("could not autofocus: %w", err)
		}
		c.focused[c.cfg.TrackID] = true
	}

	dir := filepath.Join(c.cfg.OutputDir, fmt.Sprintf("T%d", c.cfg.TrackID))
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return fmt.Errorf("could not create track directory: %w", err)
	}

	mode := tcam.ModeAppend
	if c.cfg.OverwriteSaved && !c.written[c.cfg.TrackID] {
		mode = tcam.ModeWrite
	}
	c.written[c.cfg.TrackID] = true

	path := filepath.Join(dir, containerFileName)
	dst, err := tcam.Open(path, mode, log)
	if err != nil {
		return fmt.Errorf("could not open track container: %w", err)
	}
	log.Info("track container opened", "path", path, "mode", mode.String(), "images", dst.NofImages())

	var w frameWriter
	switch c.cfg.QueueMode {
	case config.QueueModeDirect:
		w = newDirectWriter(dst, log, c.bitrate.Report)
	default:
		w = newQueuedWriter(dst, c.cfg.QueueCapacity, log, c.bitrate.Report)
	}

	capErr := c.captureFrames(w)

	err = w.Close()
	c.mu.Lock()
	c.status.Dropped += w.Dropped()
	c.mu.Unlock()
	if capErr != nil {
		return capErr
	}
	if err != nil {
		return fmt.Errorf("could not close frame writer: %w", err)
	}
	return nil
}

// captureFrames obtains frames from the source and hands them to the frame
// writer until the session ends. The first frame of a session is discarded
// to let sensor exposure settle. A missed frame is re-polled until
// frameMissTimeout, after which the session ends without error; storage
// falling behind never blocks this routine.
func (c *Capture) captureFrames(w frameWriter) error {
	log := c.cfg.Logger

	var deadline time.Time
	if c.cfg.Duration > 0 {
		deadline = c.clock.Now().Add(time.Duration(c.cfg.Duration) * time.Second)
	}

	var missedAt time.Time
	discard := true
	for {
		select {
		case <-c.stop:
			return nil
		default:
		}
		if !c.requestedSession() {
			log.Debug("session stop requested")
			return nil
		}
		if c.cfg.Duration > 0 && !c.clock.Now().Before(deadline) {
			log.Debug("session duration elapsed")
			return nil
		}

		f, err := c.input.Frame()
		if err == device.ErrNoFrame {
			if missedAt.IsZero() {
				missedAt = c.clock.Now()
			}
			if c.clock.Now().Sub(missedAt) >= frameMissTimeout {
				log.Info("image source missed frames past the miss timeout, ending session")
				return nil
			}
			c.clock.Sleep(requestPollPeriod)
			continue
		}
		if err != nil {
			return fmt.Errorf("could not get frame: %w", err)
		}
		missedAt = time.Time{}

		if discard {
			// Exposure settling; the sensor's first frame is unreliable.
			discard = false
			c.input.Release(f)
			continue
		}

		_, err = w.WriteFrame(f.Data)
		if err != nil {
			c.input.Release(f)
			return fmt.Errorf("could not write frame: %w", err)
		}

		c.mu.Lock()
		c.status.Images++
		c.status.LastWidth = f.Width
		c.status.LastHeight = f.Height
		c.status.LastSize = len(f.Data)
		c.mu.Unlock()
		c.input.Release(f)

		if c.cfg.Duration == 0 {
			log.Debug("single frame captured, ending session")
			return nil
		}
		c.clock.Sleep(requestPollPeriod)
	}
}
