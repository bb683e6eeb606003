/*
DESCRIPTION
  tlcam is a time-lapse capture daemon using the capture package to collect
  frames into per track container files on a schedule, checkpointing its
  scheduler state before long sleeps so capture sequences survive power
  cycles.

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

// Package main is the tlcam control loop daemon.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/tlcam/capture"
	"github.com/ausocean/tlcam/capture/config"
	"github.com/ausocean/tlcam/device"
	"github.com/ausocean/tlcam/device/file"
	"github.com/ausocean/tlcam/nvs"
	"github.com/ausocean/tlcam/sched"
	"github.com/ausocean/utils/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
)

// Current software version.
const version = "v1.0.0"

// Logging configuration.
const (
	logPath      = "/var/log/tlcam/tlcam.log"
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logSuppress  = true
)

// Misc constants.
const (
	pkg = "tlcam: "

	// maxInProcessSleep is the longest wait serviced in process; anything
	// longer checkpoints state and powers down instead.
	maxInProcessSleep = 60 * time.Second

	// fallbackPeriod is the capture interval used when a sequence is running
	// with neither a period nor a leap time configured.
	fallbackPeriod = 90 * time.Second

	// statusPollPeriod is how often session completion is polled.
	statusPollPeriod = 100 * time.Millisecond

	settingsFileName   = "settings.toml"
	checkpointFileName = "checkpoint.bin"
)

func main() {
	showVersion := flag.Bool("version", false, "show version")
	configDir := flag.String("ConfigDir", "/etc/tlcam", "directory holding settings and checkpoint files")
	logLevel := flag.Int("LogLevel", int(logging.Info), "specifies log level")
	flag.Parse()
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Create lumberjack logger to handle logging to file.
	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}

	log := logging.New(int8(*logLevel), io.MultiWriter(fileLog, os.Stdout), logSuppress)
	log.Info("starting tlcam", "version", version)

	settings := nvs.NewSettings(filepath.Join(*configDir, settingsFileName), log)
	vars := settings.Load(defaultVars(*configDir))
	log.Debug("loaded settings", "vars", vars)

	cfg := config.Config{Logger: log}
	cfg.Update(vars)

	var input device.ImageSource
	switch cfg.Input {
	case config.InputManual:
		input = device.NewManualSource()
	default:
		input = file.New(log)
	}

	clk := clockwork.NewRealClock()
	cam, err := capture.New(cfg, input, clk)
	if err != nil {
		log.Fatal(pkg+"could not initialise capture", "error", err.Error())
	}
	cfg = cam.Config() // Validated, with defaults applied.

	err = cam.Start()
	if err != nil {
		log.Fatal(pkg+"could not start capture", "error", err.Error())
	}

	store := sched.FileStore{Path: cfg.CheckpointPath}
	if store.Path == "" {
		store.Path = filepath.Join(*configDir, checkpointFileName)
	}

	var cp sched.Checkpoint
	err = cp.Load(store)
	if err != nil {
		log.Info("no usable checkpoint, cold boot", "error", err.Error())
		cp = sched.Checkpoint{AutoCapture: true}
	} else {
		log.Info("checkpoint restored", "nextCapture", cp.NextCapture, "images", cp.ImageCount, "auto", cp.AutoCapture)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Fatal(pkg+"could not create settings watcher", "error", err.Error())
	}
	defer watcher.Close()
	// Watch the directory; atomic saves rename over the settings file, which
	// would silently detach a watch on the file itself.
	err = watcher.Add(*configDir)
	if err != nil {
		log.Warning("could not watch config directory, settings reload disabled", "error", err.Error())
	}

	log.Debug("beginning main loop")
	run(cam, settings, defaultVars(*configDir), watcher, store, cp, clk, log)
}

// defaultVars is the boot configuration used where the settings document has
// no value. Leap time fields default to unspecified; a zero value would pin
// the schedule to midnight.
func defaultVars(configDir string) map[string]string {
	return map[string]string{
		config.KeyLeapDay:        strconv.Itoa(config.Unspecified),
		config.KeyLeapHour:       strconv.Itoa(config.Unspecified),
		config.KeyLeapMinute:     strconv.Itoa(config.Unspecified),
		config.KeyCheckpointPath: filepath.Join(configDir, checkpointFileName),
	}
}

// run is the scheduler loop; it services one capture per wake instant,
// computes the next instant, and either waits in process or checkpoints and
// powers down. On hardware the power down is a deep sleep with a timer wake;
// on a host it is process exit, with the checkpoint carrying the schedule to
// the next start.
func run(cam *capture.Capture, settings *nvs.Settings, defaults map[string]string, watcher *fsnotify.Watcher, store sched.FileStore, cp sched.Checkpoint, clk clockwork.Clock, l logging.Logger) {
	cfg := cam.Config()

	for !cp.AutoCapture {
		// The previous run exhausted its schedule. Hold for a settings
		// change for the idle period, then power down.
		l.Info("capture schedule exhausted, waiting for new settings", "idleSleep", cfg.IdleSleep)
		deadline := clk.Now().Add(time.Duration(cfg.IdleSleep) * time.Second)
		for !settingsChanged(watcher, settings.Path(), l) {
			if !clk.Now().Before(deadline) {
				l.Info("no new settings, powering down")
				saveCheckpoint(&cp, store, l)
				return
			}
			clk.Sleep(statusPollPeriod)
		}
		reload(cam, settings, defaults, l)
		cfg = cam.Config()
		cp.AutoCapture = true
		cp.NextCapture = 0
	}

	next := clk.Now()
	if cp.NextCapture > 0 {
		next = time.Unix(cp.NextCapture, 0)
	}

	for {
		if settingsChanged(watcher, settings.Path(), l) {
			reload(cam, settings, defaults, l)
			cfg = cam.Config()
		}

		delta := next.Sub(clk.Now())
		switch {
		case delta <= 0:
			// Capture due now.
		case delta <= maxInProcessSleep:
			l.Debug("sleeping in process", "delta", delta.String())
			clk.Sleep(delta)
		default:
			l.Info("long sleep, checkpointing and powering down", "nextCapture", next.Unix(), "delta", delta.String())
			cp.NextCapture = next.Unix()
			saveCheckpoint(&cp, store, l)
			return
		}

		s := captureOnce(cam, clk, l)
		if s.Err != nil {
			l.Error(pkg+"capture session failed", "error", s.Err.Error())
		}
		cp.ImageCount += uint32(s.Images)
		cp.LastCapture = clk.Now().Unix()
		cp.TrackID = uint32(cfg.TrackID)
		cp.Resolution = uint8(cfg.Resolution)
		cp.Duration = int32(cfg.Duration)
		cp.WindowStart = cfg.WindowStart
		cp.WindowEnd = cfg.WindowEnd
		l.Info("capture cycle complete", "images", s.Images, "total", cp.ImageCount, "dropped", s.Dropped, "bitrate", cam.Bitrate())

		period := time.Duration(cfg.Period) * time.Second
		lt := sched.LeapTime{Day: cfg.LeapDay, Hour: cfg.LeapHour, Minute: cfg.LeapMinute}
		if period == 0 && !lt.IsSet() {
			l.Debug("no schedule configured, using fallback period")
			period = fallbackPeriod
		}
		w := sched.Window{}
		if cfg.WindowStart != 0 {
			w.Start = time.Unix(cfg.WindowStart, 0)
		}
		if cfg.WindowEnd != 0 {
			w.End = time.Unix(cfg.WindowEnd, 0)
		}

		var ok bool
		next, ok = sched.Next(next, clk.Now(), period, lt, sched.Zone(cfg.Timezone), w)
		if !ok {
			l.Info("capture end, schedule exhausted")
			cp.AutoCapture = false
			cp.NextCapture = 0
			saveCheckpoint(&cp, store, l)
			return
		}
		l.Info("next capture computed", "nextCapture", next.Unix())
	}
}

// captureOnce requests a session and blocks until it completes, returning the
// resulting status. A stopped capture, e.g. after a failed restart on reload,
// is abandoned rather than polled forever.
func captureOnce(cam *capture.Capture, clk clockwork.Clock, l logging.Logger) capture.Status {
	baseline := cam.Status().Sessions
	l.Debug("requesting capture session")
	cam.StartSession()
	for cam.Status().Sessions == baseline {
		if !cam.Running() {
			l.Warning(pkg + "capture not running, abandoning session request")
			return cam.Status()
		}
		clk.Sleep(statusPollPeriod)
	}
	return cam.Status()
}

// settingsChanged drains pending watcher events and reports whether the
// settings document was touched.
func settingsChanged(watcher *fsnotify.Watcher, path string, l logging.Logger) bool {
	changed := false
	for {
		select {
		case ev := <-watcher.Events:
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				l.Debug("settings event", "op", ev.Op.String())
				changed = true
			}
		case err := <-watcher.Errors:
			l.Warning("settings watcher error", "error", err.Error())
		default:
			return changed
		}
	}
}

// reload re-reads the settings document and reconfigures capture. Update
// stops the run routine for the re-config, so it is restarted here; reloads
// only happen at session boundaries.
func reload(cam *capture.Capture, settings *nvs.Settings, defaults map[string]string, l logging.Logger) {
	vars := settings.Load(defaults)
	l.Info("reloading settings", "vars", vars)
	err := cam.Update(vars)
	if err != nil {
		l.Warning(pkg+"could not update capture config", "error", err.Error())
	}
	err = cam.Start()
	if err != nil {
		l.Error(pkg+"could not restart capture", "error", err.Error())
	}
}

// saveCheckpoint persists cp, logging rather than failing on error; a missed
// checkpoint costs a re-computation on next boot, not the stored captures.
func saveCheckpoint(cp *sched.Checkpoint, store sched.FileStore, l logging.Logger) {
	err := cp.Save(store)
	if err != nil {
		l.Error(pkg+"could not save checkpoint", "error", err.Error())
		return
	}
	l.Info("checkpoint saved", "nextCapture", cp.NextCapture, "images", cp.ImageCount, "auto", cp.AutoCapture)
}
