/*
DESCRIPTION
  tcam.go provides reading and writing of the TCAM image container; an
  append-only binary file format holding a session of timelapse frames
  preceded by a summary header.

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

// Package tcam implements the TCAM image container format. A container file
// consists of a 16 byte file header followed by a sequence of image records
// and a terminating end record:
//
//	file header:   "TCAM" | uint32le image count | uint64le total record size
//	image record:  "DATA" | uint32le payload length | payload
//	end record:    "END\x00" | 4 zero bytes
//
// The total record size counts image record bytes, record headers included;
// the file header and end record are excluded. The counts in the file header
// are authoritative only after Finalize has completed; a file not finalized,
// e.g. due to power loss mid session, underreports its contents but remains
// structurally valid for appending.
package tcam

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"
)

// Container layout sizes.
const (
	headerSize       = 16 // File header: tag + image count + total size.
	recordHeaderSize = 8  // Record header: tag + payload length.
)

// Record and file tags.
var (
	fileTag = [4]byte{'T', 'C', 'A', 'M'}
	dataTag = [4]byte{'D', 'A', 'T', 'A'}
	endTag  = [4]byte{'E', 'N', 'D', 0}
)

// OpenMode defines how a container file is opened. The set is closed; Open
// returns ErrUnknownMode for anything else.
type OpenMode int

const (
	// ModeRead opens an existing container for reading only. A file whose
	// header tag does not match is rejected with ErrInvalidHeader.
	ModeRead OpenMode = iota

	// ModeWrite opens a container for writing, truncating semantics; the
	// header is rewritten fresh and count and size reset to zero.
	ModeWrite

	// ModeAppend opens a container for writing after the last recorded
	// image. A missing or unrecognised header is rewritten fresh rather
	// than rejected.
	ModeAppend
)

// String implements fmt.Stringer.
func (m OpenMode) String() string {
	switch m {
	case ModeRead:
		return "Read"
	case ModeWrite:
		return "Write"
	case ModeAppend:
		return "Append"
	default:
		return "Unknown"
	}
}

// Container errors.
var (
	// ErrInvalidHeader means the file header tag did not match in ModeRead.
	ErrInvalidHeader = errors.New("invalid file header")

	// ErrCorruptRecord means a record header tag was neither a data tag nor
	// an end tag, i.e. the file is torn or corrupt at the read cursor.
	ErrCorruptRecord = errors.New("unrecognised record tag")

	// ErrReadOnly is returned for write operations on a ModeRead file.
	ErrReadOnly = errors.New("container opened read-only")

	// ErrUnknownMode is returned by Open for a mode outside the closed set.
	ErrUnknownMode = errors.New("unknown open mode")
)

// File provides cursor-based reading and writing of a TCAM container. The
// read and write cursors are independent; reads walk records sequentially
// from the first record and writes always append at the write cursor.
// File is not safe for concurrent use.
type File struct {
	f         *os.File
	log       logging.Logger
	mode      OpenMode
	nImages   uint32
	readPos   int64
	writePos  int64
	totalSize int64 // Image record bytes, record headers included.
}

// Open opens the container at path in the given mode. In ModeWrite and
// ModeAppend the file is created if absent. In ModeAppend an existing header
// is read and the write cursor positioned after the last recorded image; a
// bad header tag resets the file as if fresh. In ModeRead a bad header tag
// results in ErrInvalidHeader.
func Open(path string, mode OpenMode, l logging.Logger) (*File, error) {
	var (
		f   *os.File
		err error
	)
	switch mode {
	case ModeRead:
		f, err = os.OpenFile(path, os.O_RDONLY, 0)
	case ModeWrite, ModeAppend:
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	default:
		return nil, ErrUnknownMode
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not open container file")
	}

	c := &File{f: f, log: l, mode: mode, readPos: headerSize, writePos: headerSize}

	var hdr [headerSize]byte
	_, err = io.ReadFull(f, hdr[:])
	switch {
	case err == nil:
	case mode != ModeRead && (err == io.EOF || err == io.ErrUnexpectedEOF):
		// Fresh or truncated file; the header rewrite below handles it.
	default:
		f.Close()
		return nil, errors.Wrap(err, "could not read file header")
	}

	if mode == ModeWrite {
		err = c.writeHeader()
		if err != nil {
			f.Close()
			return nil, err
		}
		return c, nil
	}

	if [4]byte(hdr[:4]) != fileTag {
		if mode == ModeRead {
			l.Warning("invalid container header", "header", hdr[:4])
			f.Close()
			return nil, ErrInvalidHeader
		}
		l.Info("invalid container header, rewriting fresh", "header", hdr[:4])
		err = c.writeHeader()
		if err != nil {
			f.Close()
			return nil, err
		}
		return c, nil
	}

	c.nImages = binary.LittleEndian.Uint32(hdr[4:8])
	c.totalSize = int64(binary.LittleEndian.Uint64(hdr[8:16]))
	if mode == ModeAppend {
		c.writePos = headerSize + c.totalSize
	}
	return c, nil
}

// writeHeader rewrites the 16 byte file header in place with the current
// image count and total record size.
func (c *File) writeHeader() error {
	var hdr [headerSize]byte
	copy(hdr[:4], fileTag[:])
	binary.LittleEndian.PutUint32(hdr[4:8], c.nImages)
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(c.totalSize))
	_, err := c.f.WriteAt(hdr[:], 0)
	return errors.Wrap(err, "could not write file header")
}

// WriteImage appends one image record at the write cursor and advances it.
// The on-disk file header is not updated; that is deferred to Finalize so a
// burst of writes does not pay a header seek and rewrite per frame.
func (c *File) WriteImage(buf []byte) error {
	if c.mode == ModeRead {
		return ErrReadOnly
	}
	var hdr [recordHeaderSize]byte
	copy(hdr[:4], dataTag[:])
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(buf)))
	_, err := c.f.WriteAt(hdr[:], c.writePos)
	if err != nil {
		return errors.Wrap(err, "could not write image record header")
	}
	_, err = c.f.WriteAt(buf, c.writePos+recordHeaderSize)
	if err != nil {
		return errors.Wrap(err, "could not write image payload")
	}
	c.writePos += int64(len(buf) + recordHeaderSize)
	c.totalSize += int64(len(buf) + recordHeaderSize)
	c.nImages++
	return nil
}

// Finalize writes the end record at the write cursor and rewrites the file
// header with the authoritative image count and total size. It must be called
// once per write session before the header may be trusted; the write cursor
// is not advanced, so a later WriteImage on the same File, or a re-open in
// ModeAppend, overwrites the end record with new data.
func (c *File) Finalize() error {
	if c.mode == ModeRead {
		return ErrReadOnly
	}
	var hdr [recordHeaderSize]byte
	copy(hdr[:4], endTag[:])
	_, err := c.f.WriteAt(hdr[:], c.writePos)
	if err != nil {
		return errors.Wrap(err, "could not write end record")
	}
	return c.writeHeader()
}

// ImageSize returns the payload length of the image record at the read
// cursor. io.EOF signals a clean end of data, i.e. the read cursor has
// passed the last recorded image or reached the end record. An unrecognised
// record tag before that point returns ErrCorruptRecord.
func (c *File) ImageSize() (int, error) {
	if c.readPos >= headerSize+c.totalSize {
		return 0, io.EOF
	}
	var hdr [recordHeaderSize]byte
	_, err := c.f.ReadAt(hdr[:], c.readPos)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return 0, io.EOF
	}
	if err != nil {
		return 0, errors.Wrap(err, "could not read record header")
	}
	tag := [4]byte(hdr[:4])
	if tag == endTag {
		return 0, io.EOF
	}
	if tag != dataTag {
		c.log.Warning("unrecognised record tag", "tag", hdr[:4], "pos", c.readPos)
		return 0, ErrCorruptRecord
	}
	return int(binary.LittleEndian.Uint32(hdr[4:8])), nil
}

// ReadImage reads the image record at the read cursor and advances the
// cursor past it. io.EOF signals a clean end of data.
func (c *File) ReadImage() ([]byte, error) {
	size, err := c.ImageSize()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	_, err = c.f.ReadAt(buf, c.readPos+recordHeaderSize)
	if err != nil {
		return nil, errors.Wrap(err, "could not read image payload")
	}
	c.readPos += int64(size + recordHeaderSize)
	return buf, nil
}

// SeekImage advances the read cursor past n image records. There is no
// record index, so this costs n sequential record header reads.
func (c *File) SeekImage(n int) error {
	for i := 0; i < n; i++ {
		size, err := c.ImageSize()
		if err != nil {
			return errors.Wrapf(err, "could not seek past image %d", i)
		}
		c.readPos += int64(size + recordHeaderSize)
	}
	return nil
}

// NofImages returns the image count; for a file opened in ModeRead or
// ModeAppend this is the header count until writes occur.
func (c *File) NofImages() int { return int(c.nImages) }

// Size returns the total image record size in bytes.
func (c *File) Size() int64 { return c.totalSize }

// Close closes the underlying file. It does not finalize.
func (c *File) Close() error { return c.f.Close() }
