/*
DESCRIPTION
  writers_test.go provides testing for the direct and queued frame writers;
  queue backpressure and drop accounting, FIFO ordering under concurrent
  producing and draining, storage failure surfacing and finalization on
  close.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package capture

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ausocean/tlcam/container/tcam"
	"github.com/ausocean/utils/logging"
	"github.com/google/go-cmp/cmp"
)

func testLog() logging.Logger {
	return logging.New(logging.Debug, &bytes.Buffer{}, true) // Discard logs.
}

// readContainer reads back all images of the container at path.
func readContainer(t *testing.T, path string) [][]byte {
	t.Helper()
	c, err := tcam.Open(path, tcam.ModeRead, testLog())
	if err != nil {
		t.Fatalf("could not open container for read: %v", err)
	}
	defer c.Close()
	var got [][]byte
	for {
		img, err := c.ReadImage()
		if err == io.EOF {
			return got
		}
		if err != nil {
			t.Fatalf("could not read image %d: %v", len(got), err)
		}
		got = append(got, img)
	}
}

func TestQueueBackpressure(t *testing.T) {
	// No output routine; intake accounting only.
	s := &queuedWriter{log: testLog(), maxQueue: 10, done: make(chan struct{})}

	frame := []byte("abcdef") // 6 bytes.
	n, err := s.WriteFrame(frame)
	if err != nil || n != len(frame) {
		t.Fatalf("unexpected write result: n: %d, err: %v", n, err)
	}

	// A second frame would exceed the 10 byte budget; dropped, not errored.
	n, err = s.WriteFrame(frame)
	if err != nil {
		t.Fatalf("drop must not error: %v", err)
	}
	if n != 0 {
		t.Errorf("dropped frame reported as written: n: %d", n)
	}
	if s.Queued() != len(frame) {
		t.Errorf("unexpected queued bytes: got: %d, want: %d", s.Queued(), len(frame))
	}
	if s.Dropped() != 1 {
		t.Errorf("unexpected drop count: got: %d, want: 1", s.Dropped())
	}

	// Draining frees budget for further intake.
	d := s.pop()
	if !bytes.Equal(d, frame) {
		t.Errorf("unexpected popped frame: got: %q, want: %q", d, frame)
	}
	_, err = s.WriteFrame(frame)
	if err != nil {
		t.Fatalf("could not write after drain: %v", err)
	}
	if s.Dropped() != 1 {
		t.Errorf("drop count changed by successful write: got: %d", s.Dropped())
	}
}

func TestQueueFIFO(t *testing.T) {
	s := &queuedWriter{log: testLog(), maxQueue: 1 << 20, done: make(chan struct{})}
	want := [][]byte{[]byte("zero"), []byte("one"), []byte("two")}
	for _, f := range want {
		_, err := s.WriteFrame(f)
		if err != nil {
			t.Fatalf("could not write frame: %v", err)
		}
	}
	var got [][]byte
	for d := s.pop(); d != nil; d = s.pop() {
		got = append(got, d)
	}
	if !cmp.Equal(want, got) {
		t.Errorf("queue not FIFO: %v", cmp.Diff(want, got))
	}
	if s.Queued() != 0 {
		t.Errorf("queue length nonzero after drain: %d", s.Queued())
	}
}

func TestQueuedWriterDrainAndFinalize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.dat")
	dst, err := tcam.Open(path, tcam.ModeWrite, testLog())
	if err != nil {
		t.Fatalf("could not open container: %v", err)
	}

	var sent int
	var mu sync.Mutex
	report := func(n int) {
		mu.Lock()
		sent += n
		mu.Unlock()
	}

	s := newQueuedWriter(dst, 1<<20, testLog(), report)
	want := [][]byte{[]byte("first"), []byte("second"), []byte("third")}
	var total int
	for _, f := range want {
		_, err := s.WriteFrame(f)
		if err != nil {
			t.Fatalf("could not write frame: %v", err)
		}
		total += len(f)
	}

	// Close must block until drained and the container finalized.
	err = s.Close()
	if err != nil {
		t.Fatalf("could not close writer: %v", err)
	}

	mu.Lock()
	if sent != total {
		t.Errorf("unexpected reported bytes: got: %d, want: %d", sent, total)
	}
	mu.Unlock()

	got := readContainer(t, path)
	if !cmp.Equal(want, got) {
		t.Errorf("container readback mismatch: %v", cmp.Diff(want, got))
	}
}

func TestQueuedWriterConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.dat")
	dst, err := tcam.Open(path, tcam.ModeWrite, testLog())
	if err != nil {
		t.Fatalf("could not open container: %v", err)
	}

	const nFrames = 200
	s := newQueuedWriter(dst, 1<<10, testLog(), nil)

	// Produce while the output routine drains; some frames may be dropped
	// under the small budget, but survivors must keep their order.
	for i := 0; i < nFrames; i++ {
		_, err := s.WriteFrame([]byte{byte(i)})
		if err != nil {
			t.Fatalf("could not write frame %d: %v", i, err)
		}
	}
	err = s.Close()
	if err != nil {
		t.Fatalf("could not close writer: %v", err)
	}

	got := readContainer(t, path)
	if uint64(len(got))+s.Dropped() != nFrames {
		t.Errorf("stored plus dropped does not cover all frames: stored: %d, dropped: %d", len(got), s.Dropped())
	}
	last := -1
	for _, f := range got {
		if len(f) != 1 || int(f[0]) <= last {
			t.Fatalf("frame order not preserved at %d: %v", last, f)
		}
		last = int(f[0])
	}
}

func TestQueuedWriterStorageFailureSurfaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.dat")
	dst, err := tcam.Open(path, tcam.ModeWrite, testLog())
	if err != nil {
		t.Fatalf("could not open container: %v", err)
	}
	err = dst.WriteImage([]byte("frame"))
	if err != nil {
		t.Fatalf("could not write image: %v", err)
	}
	err = dst.Finalize()
	if err != nil {
		t.Fatalf("could not finalize container: %v", err)
	}
	err = dst.Close()
	if err != nil {
		t.Fatalf("could not close container: %v", err)
	}

	// A read-only container fails every storage write; the producer must
	// observe the failure, not just Close.
	dst, err = tcam.Open(path, tcam.ModeRead, testLog())
	if err != nil {
		t.Fatalf("could not reopen container for read: %v", err)
	}
	s := newQueuedWriter(dst, 1<<20, testLog(), nil)

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err = s.WriteFrame([]byte("frame"))
		if err != nil {
			break
		}
		if !time.Now().Before(deadline) {
			t.Fatal("storage failure never surfaced to the producer")
		}
		time.Sleep(queuePollPeriod)
	}
	if !errors.Is(err, tcam.ErrReadOnly) {
		t.Errorf("unexpected producer error: got: %v, want: %v", err, tcam.ErrReadOnly)
	}

	err = s.Close()
	if !errors.Is(err, tcam.ErrReadOnly) {
		t.Errorf("unexpected close error: got: %v, want: %v", err, tcam.ErrReadOnly)
	}
}

func TestDirectWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.dat")
	dst, err := tcam.Open(path, tcam.ModeWrite, testLog())
	if err != nil {
		t.Fatalf("could not open container: %v", err)
	}

	s := newDirectWriter(dst, testLog(), nil)
	want := [][]byte{[]byte("only"), []byte("two")}
	for _, f := range want {
		n, err := s.WriteFrame(f)
		if err != nil || n != len(f) {
			t.Fatalf("unexpected write result: n: %d, err: %v", n, err)
		}
	}
	if s.Dropped() != 0 {
		t.Errorf("direct writer reported drops: %d", s.Dropped())
	}
	err = s.Close()
	if err != nil {
		t.Fatalf("could not close writer: %v", err)
	}

	got := readContainer(t, path)
	if !cmp.Equal(want, got) {
		t.Errorf("container readback mismatch: %v", cmp.Diff(want, got))
	}
}
