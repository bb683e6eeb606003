/*
DESCRIPTION
  main_test.go provides testing for the control loop helpers; abandoning a
  session request against a stopped capture.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/ausocean/tlcam/capture"
	"github.com/ausocean/tlcam/capture/config"
	"github.com/ausocean/tlcam/device"
	"github.com/ausocean/utils/logging"
	"github.com/jonboulle/clockwork"
)

func TestCaptureOnceAbandonsStoppedCapture(t *testing.T) {
	l := logging.New(logging.Debug, &bytes.Buffer{}, true) // Discard logs.
	cam, err := capture.New(config.Config{
		Logger:    l,
		Input:     config.InputManual,
		OutputDir: t.TempDir(),
	}, device.NewManualSource(), clockwork.NewRealClock())
	if err != nil {
		t.Fatalf("could not construct capture: %v", err)
	}

	// The capture is never started, e.g. a reload whose restart failed;
	// captureOnce must return rather than poll for a session forever.
	done := make(chan struct{})
	go func() {
		captureOnce(cam, clockwork.NewRealClock(), l)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("captureOnce did not abandon a stopped capture")
	}
}
