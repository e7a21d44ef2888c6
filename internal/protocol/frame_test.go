package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"id":"r1","command":"ping"}`)

	if err := WriteFrame(&buf, payload, 0); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadFrame(&buf, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: %q vs %q", got, payload)
	}
}

func TestFrameBigEndianPrefix(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("abcd"), 0); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	if len(raw) != 8 {
		t.Fatalf("frame length = %d, want 8", len(raw))
	}
	want := []byte{0, 0, 0, 4}
	if !bytes.Equal(raw[:4], want) {
		t.Errorf("prefix = %v, want big-endian %v", raw[:4], want)
	}
}

func TestFrameMultipleSequential(t *testing.T) {
	var buf bytes.Buffer
	payloads := [][]byte{[]byte("first"), []byte("second"), {}}

	for _, p := range payloads {
		if err := WriteFrame(&buf, p, 0); err != nil {
			t.Fatal(err)
		}
	}
	for i, want := range payloads {
		got, err := ReadFrame(&buf, 0)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d = %q, want %q", i, got, want)
		}
	}
	if _, err := ReadFrame(&buf, 0); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF after last frame, got %v", err)
	}
}

func TestFrameSizeLimit(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, make([]byte, 100), 64); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("oversized write should fail, got %v", err)
	}

	buf.Reset()
	if err := WriteFrame(&buf, make([]byte, 100), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFrame(&buf, 64); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("oversized read should fail, got %v", err)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("full payload"), 0); err != nil {
		t.Fatal(err)
	}
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-3])

	if _, err := ReadFrame(truncated, 0); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated frame should fail with unexpected EOF, got %v", err)
	}
}
