package wyoming

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

// fakeServer answers one session over an in-memory pipe.
type fakeServer struct {
	dials   atomic.Int32
	handler func(conn net.Conn)
}

func (s *fakeServer) dial(_ context.Context, _ string) (net.Conn, error) {
	s.dials.Add(1)
	client, server := net.Pipe()
	go func() {
		defer server.Close()
		s.handler(server)
	}()
	return client, nil
}

// readUntil consumes events until one of the given type arrives.
func readUntil(t *testing.T, r *bufio.Reader, eventType string) Event {
	t.Helper()
	for {
		ev, err := ReadEvent(r)
		if err != nil {
			t.Fatalf("server read: %v", err)
		}
		if ev.Type == eventType {
			return ev
		}
	}
}

func asrServer(t *testing.T, terminal ...Event) *fakeServer {
	return &fakeServer{handler: func(conn net.Conn) {
		r := bufio.NewReader(conn)
		readUntil(t, r, TypeAudioStop)
		for _, ev := range terminal {
			if err := WriteEvent(conn, ev); err != nil {
				return
			}
		}
	}}
}

func newTestClient(srv *fakeServer) *Client {
	c := NewClient("localhost:10300", 2*time.Second)
	c.dial = srv.dial
	return c
}

func TestTranscribeReturnsTrimmedText(t *testing.T) {
	srv := asrServer(t, Event{Type: TypeTranscript, Data: marshalData(transcriptData{Text: "  hello world \n"})})
	c := newTestClient(srv)

	text, err := c.Transcribe(context.Background(), []float32{0.1, 0.2, 0.3}, 0)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello world" {
		t.Errorf("text = %q", text)
	}
}

func TestTranscribeSkipsNonTerminalEvents(t *testing.T) {
	srv := asrServer(t,
		Event{Type: "voice-started"},
		Event{Type: "voice-stopped"},
		Event{Type: TypeTranscript, Data: marshalData(transcriptData{Text: "done"})},
	)
	c := newTestClient(srv)

	text, err := c.Transcribe(context.Background(), []float32{0.5}, 0)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "done" {
		t.Errorf("text = %q", text)
	}
}

func TestTranscribeServerError(t *testing.T) {
	srv := asrServer(t, Event{Type: TypeError, Data: marshalData(errorData{Text: "model exploded"})})
	c := newTestClient(srv)

	_, err := c.Transcribe(context.Background(), []float32{0.5}, 0)
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if se.Message != "model exploded" {
		t.Errorf("message = %q", se.Message)
	}
}

func TestTranscribeEmptyBufferDoesNotDial(t *testing.T) {
	srv := &fakeServer{handler: func(conn net.Conn) {}}
	c := newTestClient(srv)

	_, err := c.Transcribe(context.Background(), nil, 0)
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio, got %v", err)
	}
	if n := srv.dials.Load(); n != 0 {
		t.Errorf("dial count = %d, want 0", n)
	}
}

func TestTranscribeSendsLanguageAndChunks(t *testing.T) {
	gotIntent := make(chan Event, 1)
	chunkCount := make(chan int, 1)
	srv := &fakeServer{handler: func(conn net.Conn) {
		r := bufio.NewReader(conn)
		intent := readUntil(t, r, TypeTranscribe)
		gotIntent <- intent
		n := 0
		for {
			ev, err := ReadEvent(r)
			if err != nil {
				return
			}
			if ev.Type == TypeAudioChunk {
				n++
			}
			if ev.Type == TypeAudioStop {
				break
			}
		}
		chunkCount <- n
		WriteEvent(conn, Event{Type: TypeTranscript, Data: marshalData(transcriptData{})})
	}}
	c := newTestClient(srv)
	c.SetLanguage("en")

	// 3000 samples -> 6000 bytes -> 6 chunks of <=1024 bytes
	samples := make([]float32, 3000)
	if _, err := c.Transcribe(context.Background(), samples, 0); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	intent := <-gotIntent
	if string(intent.Data) != `{"language":"en"}` {
		t.Errorf("intent data = %s", intent.Data)
	}
	if n := <-chunkCount; n != 6 {
		t.Errorf("chunk count = %d, want 6", n)
	}
}

func TestDescribeAndModelCache(t *testing.T) {
	info := Info{ASR: []ASRService{{
		Name:   "faster-whisper",
		Models: []ASRModel{{Name: "turbo"}, {Name: "base"}},
	}}}
	srv := &fakeServer{handler: func(conn net.Conn) {
		r := bufio.NewReader(conn)
		readUntil(t, r, TypeDescribe)
		WriteEvent(conn, Event{Type: TypeInfo, Data: marshalData(info)})
	}}
	c := newTestClient(srv)

	models, err := c.Models(context.Background(), 0)
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	if len(models) != 2 || models[0] != "turbo" {
		t.Errorf("models = %v", models)
	}
	if _, err := c.Models(context.Background(), 0); err != nil {
		t.Fatalf("Models (cached): %v", err)
	}
	if n := srv.dials.Load(); n != 1 {
		t.Errorf("dial count = %d, want 1 (second call served from cache)", n)
	}

	// Retargeting invalidates the cache.
	c.SetEndpoint("tcp://otherhost:10301")
	if _, err := c.Models(context.Background(), 0); err != nil {
		t.Fatalf("Models (after retarget): %v", err)
	}
	if n := srv.dials.Load(); n != 2 {
		t.Errorf("dial count = %d, want 2 after endpoint change", n)
	}
}

func TestDescribeRejectsUnexpectedEvent(t *testing.T) {
	srv := &fakeServer{handler: func(conn net.Conn) {
		r := bufio.NewReader(conn)
		readUntil(t, r, TypeDescribe)
		WriteEvent(conn, Event{Type: TypeTranscript, Data: marshalData(transcriptData{})})
	}}
	c := newTestClient(srv)
	if _, err := c.Describe(context.Background()); err == nil {
		t.Fatal("expected error for non-info response")
	}
}

func TestParseAddr(t *testing.T) {
	for _, tt := range []struct {
		in   string
		host string
		port int
	}{
		{"localhost:10300", "localhost", 10300},
		{"tcp://10.0.0.5:10301", "10.0.0.5", 10301},
		{"http://whisper.local:9000", "whisper.local", 9000},
		{"somehost", "somehost", DefaultPort},
		{"", "localhost", DefaultPort},
	} {
		host, port := ParseAddr(tt.in)
		if host != tt.host || port != tt.port {
			t.Errorf("ParseAddr(%q) = %s:%d, want %s:%d", tt.in, host, port, tt.host, tt.port)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	c := NewClient(ln.Addr().String(), 0)
	if !c.HealthCheck() {
		t.Error("expected healthy endpoint")
	}

	ln.Close()
	if c.HealthCheck() {
		t.Error("expected unhealthy endpoint after listener closed")
	}
}
