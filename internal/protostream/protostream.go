// Package protostream implements reading and writing of length-prefixed messages to data streams.
//
// Each message is preceded by its length as a 4-byte little-endian integer,
// so that a reader always receives whole messages regardless of how the stream is segmented.
package protostream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/relab/flooding"
	"github.com/relab/flooding/wire"
)

// ErrMalformed is returned by Read when a whole frame was read but its contents could not be decoded.
// The stream is still positioned at the start of the next frame.
var ErrMalformed = errors.New("protostream: malformed message")

// DefaultMaxMessageSize is the largest message a Reader accepts unless configured otherwise.
const DefaultMaxMessageSize = 64 << 20

// Writer writes messages to an io.Writer.
type Writer struct {
	mut  sync.Mutex
	dest io.Writer
	buf  []byte
}

// NewWriter returns a new Writer. dest is the io.Writer that the Writer should write to (the stream).
func NewWriter(dest io.Writer) *Writer {
	return &Writer{dest: dest}
}

// Write writes a message to the stream. It is safe to call Write from multiple goroutines.
func (w *Writer) Write(msg flooding.Message) error {
	w.mut.Lock()
	defer w.mut.Unlock()

	// reserve room for the length prefix and encode the message after it
	buf, err := wire.Append(append(w.buf[:0], 0, 0, 0, 0), msg)
	if err != nil {
		return fmt.Errorf("protostream: failed to marshal message: %w", err)
	}
	w.buf = buf
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(buf)-4))

	_, err = w.dest.Write(buf)
	if err != nil {
		return fmt.Errorf("protostream: failed to write message: %w", err)
	}
	return nil
}

// Reader reads messages from an io.Reader.
type Reader struct {
	mut     sync.Mutex
	src     io.Reader
	maxSize uint32
}

// NewReader returns a new Reader. src is the io.Reader that the Reader should read messages from.
// Messages longer than maxSize bytes are rejected; if maxSize is 0, DefaultMaxMessageSize is used.
func NewReader(src io.Reader, maxSize uint32) *Reader {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &Reader{
		src:     src,
		maxSize: maxSize,
	}
}

// Read reads a message from the stream.
// It returns io.EOF if the stream ended cleanly between two messages.
func (r *Reader) Read() (flooding.Message, error) {
	r.mut.Lock()
	defer r.mut.Unlock()

	var msgLenBuf [4]byte
	_, err := io.ReadFull(r.src, msgLenBuf[:])
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("protostream: failed to read message length: %w", err)
	}

	msgLen := binary.LittleEndian.Uint32(msgLenBuf[:])
	if msgLen > r.maxSize {
		return nil, fmt.Errorf("protostream: message length %d exceeds the limit of %d bytes", msgLen, r.maxSize)
	}

	buf := make([]byte, msgLen)
	_, err = io.ReadFull(r.src, buf)
	if err != nil {
		return nil, fmt.Errorf("protostream: failed to read message: %w", err)
	}

	msg, err := wire.Unmarshal(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return msg, nil
}
