/*
DESCRIPTION
  checkpoint.go provides the Checkpoint type, a fixed size binary image of
  the scheduler state that survives power cycles, and the Store interface
  through which it is persisted before long sleeps.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package sched

import (
	"encoding/binary"
	"hash/crc32"
	"os"

	"github.com/pkg/errors"
)

// checkpointSize is the size of the encoded checkpoint region. The layout is
// fixed little-endian:
//
//	0   magic "TLCP"
//	4   auto capture flag
//	5   resolution
//	6   padding
//	8   track id
//	12  image count
//	16  duration (seconds, int32)
//	20  next capture    (unix seconds)
//	28  last capture    (unix seconds)
//	36  last posted     (unix seconds)
//	44  window start    (unix seconds)
//	52  window end      (unix seconds)
//	60  last status post (unix seconds)
//	68  reserved
//	76  CRC-32 (IEEE) of bytes 0-75
const checkpointSize = 80

var checkpointMagic = [4]byte{'T', 'L', 'C', 'P'}

// ErrBadCheckpoint means the persisted region is not a valid checkpoint; the
// magic, length or checksum did not match. Treated by the control loop as a
// cold boot.
var ErrBadCheckpoint = errors.New("invalid checkpoint region")

// Store persists the encoded checkpoint region. Implementations stand in for
// the retained memory of the platform.
type Store interface {
	Load() ([]byte, error)
	Save([]byte) error
}

// Checkpoint is the scheduler state carried across power cycles. Times are
// unix seconds; zero means not yet recorded.
type Checkpoint struct {
	// AutoCapture records whether scheduled capture was in progress at
	// sleep, i.e. whether the control loop should resume it on wake.
	AutoCapture bool

	// NextCapture is the wake instant computed before sleeping.
	NextCapture int64

	// Duration, Resolution and TrackID reproduce the capture configuration
	// in effect at sleep.
	Duration   int32
	Resolution uint8
	TrackID    uint32

	// ImageCount is the per track capture ordinal, continued on wake.
	ImageCount uint32

	// LastCapture and LastPosted record progress for the control layer.
	LastCapture int64
	LastPosted  int64

	// WindowStart and WindowEnd bound the capture schedule.
	WindowStart int64
	WindowEnd   int64

	// LastStatusPost records the last status report instant.
	LastStatusPost int64
}

// Marshal encodes the checkpoint into a fresh checkpointSize byte region.
func (c *Checkpoint) Marshal() []byte {
	b := make([]byte, checkpointSize)
	copy(b[0:4], checkpointMagic[:])
	if c.AutoCapture {
		b[4] = 1
	}
	b[5] = c.Resolution
	binary.LittleEndian.PutUint32(b[8:12], c.TrackID)
	binary.LittleEndian.PutUint32(b[12:16], c.ImageCount)
	binary.LittleEndian.PutUint32(b[16:20], uint32(c.Duration))
	binary.LittleEndian.PutUint64(b[20:28], uint64(c.NextCapture))
	binary.LittleEndian.PutUint64(b[28:36], uint64(c.LastCapture))
	binary.LittleEndian.PutUint64(b[36:44], uint64(c.LastPosted))
	binary.LittleEndian.PutUint64(b[44:52], uint64(c.WindowStart))
	binary.LittleEndian.PutUint64(b[52:60], uint64(c.WindowEnd))
	binary.LittleEndian.PutUint64(b[60:68], uint64(c.LastStatusPost))
	binary.LittleEndian.PutUint32(b[76:80], crc32.ChecksumIEEE(b[:76]))
	return b
}

// Unmarshal decodes a checkpoint region into c. ErrBadCheckpoint is returned
// for a region of the wrong size, magic or checksum; c is unmodified in that
// case.
func (c *Checkpoint) Unmarshal(b []byte) error {
	if len(b) != checkpointSize {
		return ErrBadCheckpoint
	}
	if [4]byte(b[0:4]) != checkpointMagic {
		return ErrBadCheckpoint
	}
	if binary.LittleEndian.Uint32(b[76:80]) != crc32.ChecksumIEEE(b[:76]) {
		return ErrBadCheckpoint
	}
	c.AutoCapture = b[4] == 1
	c.Resolution = b[5]
	c.TrackID = binary.LittleEndian.Uint32(b[8:12])
	c.ImageCount = binary.LittleEndian.Uint32(b[12:16])
	c.Duration = int32(binary.LittleEndian.Uint32(b[16:20]))
	c.NextCapture = int64(binary.LittleEndian.Uint64(b[20:28]))
	c.LastCapture = int64(binary.LittleEndian.Uint64(b[28:36]))
	c.LastPosted = int64(binary.LittleEndian.Uint64(b[36:44]))
	c.WindowStart = int64(binary.LittleEndian.Uint64(b[44:52]))
	c.WindowEnd = int64(binary.LittleEndian.Uint64(b[52:60]))
	c.LastStatusPost = int64(binary.LittleEndian.Uint64(b[60:68]))
	return nil
}

// Save encodes c and writes it through s.
func (c *Checkpoint) Save(s Store) error {
	err := s.Save(c.Marshal())
	return errors.Wrap(err, "could not save checkpoint")
}

// Load reads the region from s and decodes it into c.
func (c *Checkpoint) Load(s Store) error {
	b, err := s.Load()
	if err != nil {
		return errors.Wrap(err, "could not load checkpoint")
	}
	return c.Unmarshal(b)
}

// FileStore is a file backed Store. Saves are atomic; the region is written
// to a temporary file and renamed into place so a power loss mid write leaves
// the previous checkpoint intact.
type FileStore struct {
	Path string
}

// Load implements Store.
func (f FileStore) Load() ([]byte, error) {
	return os.ReadFile(f.Path)
}

// Save implements Store.
func (f FileStore) Save(b []byte) error {
	tmp := f.Path + ".tmp"
	err := os.WriteFile(tmp, b, 0666)
	if err != nil {
		return errors.Wrap(err, "could not write checkpoint temp file")
	}
	return errors.Wrap(os.Rename(tmp, f.Path), "could not rename checkpoint into place")
}
