package protostream_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/relab/flooding"
	"github.com/relab/flooding/internal/protostream"
)

func TestWriteRead(t *testing.T) {
	var buf bytes.Buffer // in-memory stream
	msgs := []flooding.Message{
		flooding.JoinMsg{ID: 1, Addr: "localhost:1234"},
		flooding.ProposalMsg{Round: 2, Values: []flooding.Value{"a", "b}{"}},
		flooding.DecisionMsg{Round: 2, Value: "b}{"},
	}

	writer := protostream.NewWriter(&buf)
	reader := protostream.NewReader(&buf, 0)

	for _, msg := range msgs {
		if err := writer.Write(msg); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	for _, want := range msgs {
		got, err := reader.Read()
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	if _, err := reader.Read(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at the end of the stream, got %v", err)
	}
}

// oneByteReader returns the stream one byte at a time.
type oneByteReader struct {
	r io.Reader
}

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

func TestReadSegmentedStream(t *testing.T) {
	var buf bytes.Buffer
	writer := protostream.NewWriter(&buf)
	want := flooding.DecisionMsg{Round: 9, Value: "segmented"}
	if err := writer.Write(want); err != nil {
		t.Fatal(err)
	}

	reader := protostream.NewReader(oneByteReader{&buf}, 0)
	got, err := reader.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestReadTooLarge(t *testing.T) {
	var buf bytes.Buffer
	var msgLen [4]byte
	binary.LittleEndian.PutUint32(msgLen[:], 1025)
	buf.Write(msgLen[:])

	reader := protostream.NewReader(&buf, 1024)
	if _, err := reader.Read(); err == nil {
		t.Fatal("expected an error for a message larger than the limit")
	}
}

func TestReadTruncated(t *testing.T) {
	var buf bytes.Buffer
	writer := protostream.NewWriter(&buf)
	if err := writer.Write(flooding.DecisionMsg{Round: 1, Value: "x"}); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()

	reader := protostream.NewReader(bytes.NewReader(data[:len(data)-1]), 0)
	_, err := reader.Read()
	if err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("expected an error for a truncated message, got %v", err)
	}
}

func TestReadMalformedKeepsStream(t *testing.T) {
	var buf bytes.Buffer
	// a complete frame whose contents are not a valid envelope
	buf.Write(binary.LittleEndian.AppendUint32(nil, 3))
	buf.Write([]byte{0xff, 0xff, 0xff})
	if err := protostream.NewWriter(&buf).Write(flooding.DecisionMsg{Round: 1, Value: "x"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	reader := protostream.NewReader(&buf, 0)
	if _, err := reader.Read(); !errors.Is(err, protostream.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	got, err := reader.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if want := (flooding.DecisionMsg{Round: 1, Value: "x"}); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
