package openaicompat

import (
	"io"
	"strings"
	"testing"
)

// chunkedReader returns its payload in fixed-size pieces so frames get
// split at arbitrary byte positions, the way a TCP stream delivers them.
type chunkedReader struct {
	data []byte
	size int
	pos  int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := r.size
	if n > len(p) {
		n = len(p)
	}
	if r.pos+n > len(r.data) {
		n = len(r.data) - r.pos
	}
	copy(p, r.data[r.pos:r.pos+n])
	r.pos += n
	return n, nil
}

func collectEvents(t *testing.T, d *sseDecoder) []string {
	t.Helper()
	var events []string
	for {
		data, err := d.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		events = append(events, string(data))
	}
}

func TestSSEDecoderBasic(t *testing.T) {
	input := "data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: [DONE]\n\n"
	events := collectEvents(t, newSSEDecoder(strings.NewReader(input)))

	want := []string{`{"a":1}`, `{"b":2}`, "[DONE]"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestSSEDecoderSplitAcrossReads(t *testing.T) {
	input := "data: {\"content\":\"hello world\"}\n\ndata: [DONE]\n\n"
	for _, size := range []int{1, 2, 3, 7, 64} {
		d := newSSEDecoder(&chunkedReader{data: []byte(input), size: size})
		events := collectEvents(t, d)
		if len(events) != 2 {
			t.Fatalf("size %d: got %d events, want 2: %v", size, len(events), events)
		}
		if events[0] != `{"content":"hello world"}` {
			t.Errorf("size %d: event 0 = %q", size, events[0])
		}
	}
}

func TestSSEDecoderSkipsCommentsAndUnknownFields(t *testing.T) {
	input := ": keep-alive\n" +
		"event: message\n" +
		"id: 42\n" +
		"data: payload\n" +
		"\n"
	events := collectEvents(t, newSSEDecoder(strings.NewReader(input)))
	if len(events) != 1 || events[0] != "payload" {
		t.Fatalf("events = %v, want [payload]", events)
	}
}

func TestSSEDecoderJoinsMultipleDataLines(t *testing.T) {
	input := "data: first\ndata: second\n\n"
	events := collectEvents(t, newSSEDecoder(strings.NewReader(input)))
	if len(events) != 1 || events[0] != "first\nsecond" {
		t.Fatalf("events = %v, want joined payload", events)
	}
}

func TestSSEDecoderCRLF(t *testing.T) {
	input := "data: one\r\n\r\ndata: two\r\n\r\n"
	events := collectEvents(t, newSSEDecoder(strings.NewReader(input)))
	if len(events) != 2 || events[0] != "one" || events[1] != "two" {
		t.Fatalf("events = %v, want [one two]", events)
	}
}

func TestSSEDecoderFinalEventWithoutBlankLine(t *testing.T) {
	input := "data: one\n\ndata: trailing"
	events := collectEvents(t, newSSEDecoder(strings.NewReader(input)))
	if len(events) != 2 || events[1] != "trailing" {
		t.Fatalf("events = %v, want trailing event flushed at EOF", events)
	}
}

func TestSSEDecoderEmptyStream(t *testing.T) {
	d := newSSEDecoder(strings.NewReader(""))
	if _, err := d.Next(); err != io.EOF {
		t.Fatalf("Next on empty stream = %v, want io.EOF", err)
	}
}

func TestSSEDecoderDataWithoutSpace(t *testing.T) {
	input := "data:compact\n\n"
	events := collectEvents(t, newSSEDecoder(strings.NewReader(input)))
	if len(events) != 1 || events[0] != "compact" {
		t.Fatalf("events = %v, want [compact]", events)
	}
}
