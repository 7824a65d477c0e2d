// Package wyoming implements the client side of the Wyoming streaming ASR
// protocol: newline-delimited JSON events over a plain TCP connection, one
// request/response exchange per connection.
package wyoming

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultPort    = 10300
	DefaultTimeout = 30 * time.Second

	// Transport chunking for the PCM stream; not a protocol requirement.
	chunkSize = 1024

	dialTimeout     = 5 * time.Second
	describeTimeout = 5 * time.Second

	// DefaultInfoMaxAge is the freshness window for cached capability
	// responses.
	DefaultInfoMaxAge = 60 * time.Second
)

// ErrNoAudio is returned by Transcribe for an empty sample buffer, before
// any connection is opened.
var ErrNoAudio = errors.New("no audio to transcribe")

// ServerError is an explicit error event from the ASR service, as opposed
// to a transport failure.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "asr server error: " + e.Message }

// DialFunc opens the transport connection. Tests substitute an in-memory
// pipe here.
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

// Info is the capability response to a describe request.
type Info struct {
	ASR []ASRService `json:"asr"`
}

type ASRService struct {
	Name   string     `json:"name"`
	Models []ASRModel `json:"models"`
}

type ASRModel struct {
	Name string `json:"name"`
}

// ModelNames flattens the model list of the first ASR service.
func (i *Info) ModelNames() []string {
	if i == nil || len(i.ASR) == 0 {
		return nil
	}
	var names []string
	for _, m := range i.ASR[0].Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names
}

// Client drives one ASR endpoint. It opens a fresh session per call and
// carries no retry logic; callers decide whether to retry.
type Client struct {
	mu       sync.Mutex
	host     string
	port     int
	model    string
	language string
	beam     int
	timeout  time.Duration
	dial     DialFunc

	info   *Info
	infoAt time.Time
}

// NewClient parses addr ("host:port", "tcp://host:port", or bare host) and
// returns a client with the given exchange timeout (DefaultTimeout if
// non-positive).
func NewClient(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	host, port := ParseAddr(addr)
	return &Client{host: host, port: port, timeout: timeout}
}

// ParseAddr splits an endpoint spec into host and port, defaulting to
// localhost and the standard Wyoming port.
func ParseAddr(addr string) (string, int) {
	for _, scheme := range []string{"tcp://", "http://", "https://"} {
		addr = strings.TrimPrefix(addr, scheme)
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		host, portStr = addr, ""
	}
	if host == "" {
		host = "localhost"
	}
	port := DefaultPort
	if portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil && p > 0 {
			port = p
		}
	}
	return host, port
}

// Endpoint returns the current "host:port" target.
func (c *Client) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// SetEndpoint retargets the client and invalidates any cached capability
// response.
func (c *Client) SetEndpoint(addr string) {
	host, port := ParseAddr(addr)
	c.mu.Lock()
	c.host = host
	c.port = port
	c.info = nil
	c.infoAt = time.Time{}
	c.mu.Unlock()
}

func (c *Client) SetModel(name string) {
	c.mu.Lock()
	c.model = name
	c.mu.Unlock()
}

func (c *Client) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

func (c *Client) SetLanguage(lang string) {
	c.mu.Lock()
	c.language = lang
	c.mu.Unlock()
}

func (c *Client) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

func (c *Client) SetBeam(beam int) {
	c.mu.Lock()
	c.beam = beam
	c.mu.Unlock()
}

func (c *Client) Beam() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.beam
}

// HealthCheck reports whether a bare TCP connection to the endpoint
// succeeds. It never returns an error.
func (c *Client) HealthCheck() bool {
	conn, err := net.DialTimeout("tcp", c.Endpoint(), dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	c.mu.Lock()
	dial := c.dial
	c.mu.Unlock()
	if dial == nil {
		d := &net.Dialer{Timeout: dialTimeout}
		return d.DialContext(ctx, "tcp", c.Endpoint())
	}
	return dial(ctx, c.Endpoint())
}

// Describe opens a session, requests the service capabilities, and waits
// for the info response within a bounded timeout.
func (c *Client) Describe(ctx context.Context) (*Info, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("describe: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(describeTimeout))

	if err := WriteEvent(conn, Event{Type: TypeDescribe}); err != nil {
		return nil, fmt.Errorf("describe: %w", err)
	}
	ev, err := ReadEvent(bufio.NewReader(conn))
	if err != nil {
		return nil, fmt.Errorf("describe: %w", err)
	}
	if ev.Type != TypeInfo {
		return nil, fmt.Errorf("describe: unexpected %s event", ev.Type)
	}
	var info Info
	if err := json.Unmarshal(ev.Data, &info); err != nil {
		return nil, fmt.Errorf("describe: malformed info: %w", err)
	}
	return &info, nil
}

// Models returns the model names advertised by the service, reusing a
// cached capability response newer than maxAge (DefaultInfoMaxAge if
// non-positive).
func (c *Client) Models(ctx context.Context, maxAge time.Duration) ([]string, error) {
	if maxAge <= 0 {
		maxAge = DefaultInfoMaxAge
	}
	c.mu.Lock()
	if c.info != nil && time.Since(c.infoAt) < maxAge {
		info := c.info
		c.mu.Unlock()
		return info.ModelNames(), nil
	}
	c.mu.Unlock()

	info, err := c.Describe(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.info = info
	c.infoAt = time.Now()
	c.mu.Unlock()
	return info.ModelNames(), nil
}

type transcribeData struct {
	Name     string `json:"name,omitempty"`
	Language string `json:"language,omitempty"`
}

type audioFormatData struct {
	Rate     int `json:"rate"`
	Width    int `json:"width"`
	Channels int `json:"channels"`
}

type transcriptData struct {
	Text string `json:"text"`
}

type errorData struct {
	Text    string `json:"text"`
	Message string `json:"message"`
}

// Transcribe streams the samples through one session and waits for the
// terminal transcript or error event. Samples are clipped and encoded as
// mono 16-bit LE PCM. An empty transcript means no speech was detected.
func (c *Client) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", ErrNoAudio
	}
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}

	c.mu.Lock()
	timeout := c.timeout
	intent := transcribeData{Name: c.model, Language: c.language}
	c.mu.Unlock()

	pcm := EncodePCM(samples)

	conn, err := c.connect(ctx)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	// Best-effort close on every exit path; a failed disconnect is not
	// worth surfacing over the primary result.
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	format := audioFormatData{Rate: sampleRate, Width: SampleWidth, Channels: Channels}
	bw := bufio.NewWriter(conn)
	if err := WriteEvent(bw, Event{Type: TypeTranscribe, Data: marshalData(intent)}); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if err := WriteEvent(bw, Event{Type: TypeAudioStart, Data: marshalData(format)}); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	for off := 0; off < len(pcm); off += chunkSize {
		end := min(off+chunkSize, len(pcm))
		chunk := Event{Type: TypeAudioChunk, Data: marshalData(format), Payload: pcm[off:end]}
		if err := WriteEvent(bw, chunk); err != nil {
			return "", fmt.Errorf("transcribe: %w", err)
		}
	}
	if err := WriteEvent(bw, Event{Type: TypeAudioStop}); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	br := bufio.NewReader(conn)
	for {
		ev, err := ReadEvent(br)
		if err != nil {
			return "", fmt.Errorf("transcribe: %w", err)
		}
		switch ev.Type {
		case TypeTranscript:
			var td transcriptData
			if err := json.Unmarshal(ev.Data, &td); err != nil {
				return "", fmt.Errorf("transcribe: malformed transcript: %w", err)
			}
			return strings.TrimSpace(td.Text), nil
		case TypeError:
			var ed errorData
			_ = json.Unmarshal(ev.Data, &ed)
			msg := ed.Text
			if msg == "" {
				msg = ed.Message
			}
			if msg == "" {
				msg = "unknown error"
			}
			return "", &ServerError{Message: msg}
		default:
			// Progress or unrelated events; wait for the terminal one.
		}
	}
}
