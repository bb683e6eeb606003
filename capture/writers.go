/*
DESCRIPTION
  writers.go provides frame writer implementations used by the capture
  pipeline to store captured frames in a TCAM container; a direct writer that
  writes synchronously on the capture routine, and a queued writer that
  buffers frames in a bounded in-memory queue serviced by a background
  routine.

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
	"sync"
	"time"

	"github.com/ausocean/tlcam/container/tcam"
	"github.com/ausocean/utils/logging"
)

// queuePollPeriod is how long the queued writer's output routine waits before
// re-checking an empty queue.
const queuePollPeriod = 10 * time.Millisecond

// frameWriter is the interface of the storage side of the capture pipeline.
// WriteFrame accepts one encoded frame; implementations may defer the actual
// storage write. Close completes any deferred writes, finalizes the container
// and releases the underlying file. Dropped reports the number of frames
// discarded due to backpressure.
type frameWriter interface {
	WriteFrame(d []byte) (int, error)
	Close() error
	Dropped() uint64
}

// directWriter writes each frame to the container synchronously on the
// calling routine. Used when storage latency is acceptable inline, e.g.
// single frame sessions.
type directWriter struct {
	dst    *tcam.File
	log    logging.Logger
	report func(sent int)
}

func newDirectWriter(dst *tcam.File, log logging.Logger, report func(sent int)) *directWriter {
	return &directWriter{dst: dst, log: log, report: report}
}

// WriteFrame writes d to the container before returning.
func (s *directWriter) WriteFrame(d []byte) (int, error) {
	err := s.dst.WriteImage(d)
	if err != nil {
		return 0, err
	}
	if s.report != nil {
		s.report(len(d))
	}
	return len(d), nil
}

// Close finalizes and closes the container.
func (s *directWriter) Close() error {
	err := s.dst.Finalize()
	if err != nil {
		s.dst.Close()
		return err
	}
	return s.dst.Close()
}

// Dropped always reports zero; a direct writer never drops frames.
func (s *directWriter) Dropped() uint64 { return 0 }

// queuedWriter decouples frame production from storage by buffering frames in
// a byte-bounded FIFO serviced by a background output routine. A frame that
// would grow the queue past its byte budget is dropped and counted rather
// than blocking the capture routine. Close stops intake, waits for the queue
// to drain, then finalizes and closes the container exactly once.
type queuedWriter struct {
	dst      *tcam.File
	log      logging.Logger
	report   func(sent int)
	maxQueue uint

	mu       sync.Mutex
	queue    [][]byte
	queueLen uint
	dropped  uint64
	writeErr error

	done chan struct{}
	wg   sync.WaitGroup
}

func newQueuedWriter(dst *tcam.File, maxQueue uint, log logging.Logger, report func(sent int)) *queuedWriter {
	s := &queuedWriter{
		dst:      dst,
		log:      log,
		report:   report,
		maxQueue: maxQueue,
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.output()
	return s
}

// output services the queue until Close is signalled and the queue is empty,
// then finalizes and closes the container.
func (s *queuedWriter) output() {
	defer s.wg.Done()
	for {
		d := s.pop()
		if d == nil {
			select {
			case <-s.done:
				s.log.Debug("queue drained, finalizing container")
				err := s.dst.Finalize()
				if err != nil {
					s.log.Error("could not finalize container", "error", err.Error())
					s.setErr(err)
				}
				err = s.dst.Close()
				if err != nil {
					s.log.Error("could not close container", "error", err.Error())
					s.setErr(err)
				}
				return
			default:
				time.Sleep(queuePollPeriod)
				continue
			}
		}

		err := s.dst.WriteImage(d)
		if err != nil {
			s.log.Error("could not write queued frame", "error", err.Error())
			s.setErr(err)
			continue
		}
		if s.report != nil {
			s.report(len(d))
		}
	}
}

// pop removes and returns the oldest queued frame, or nil if the queue is
// empty.
func (s *queuedWriter) pop() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	d := s.queue[0]
	s.queue = s.queue[1:]
	s.queueLen -= uint(len(d))
	return d
}

func (s *queuedWriter) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr == nil {
		s.writeErr = err
	}
}

// WriteFrame queues d for storage by the output routine. If queueing d would
// exceed the queue byte budget the frame is dropped, counted and no error
// returned; storage falling behind must not fail the capture routine. A
// storage failure observed by the output routine is however returned from
// every subsequent call, so the capture routine can abort the session rather
// than queue frames against dead storage. The bytes are copied, so the caller
// may reuse d immediately.
func (s *queuedWriter) WriteFrame(d []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	if s.queueLen+uint(len(d)) > s.maxQueue {
		s.dropped++
		s.log.Warning("queue full, dropping frame", "frameSize", len(d), "queued", s.queueLen, "dropped", s.dropped)
		return 0, nil
	}
	bytes := make([]byte, len(d))
	copy(bytes, d)
	s.queue = append(s.queue, bytes)
	s.queueLen += uint(len(d))
	return len(d), nil
}

// Queued returns the number of bytes currently buffered.
func (s *queuedWriter) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.queueLen)
}

// Dropped reports the number of frames discarded due to a full queue.
func (s *queuedWriter) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops frame intake and blocks until the output routine has drained
// the queue and finalized the container. It returns the first storage error
// encountered by the output routine, if any.
func (s *queuedWriter) Close() error {
	s.log.Debug("closing writer output routine")
	close(s.done)
	s.wg.Wait()
	s.log.Info("writer output routine closed")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeErr
}
