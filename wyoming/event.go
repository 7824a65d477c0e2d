package wyoming

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Event types used by the ASR exchange.
const (
	TypeDescribe   = "describe"
	TypeInfo       = "info"
	TypeTranscribe = "transcribe"
	TypeAudioStart = "audio-start"
	TypeAudioChunk = "audio-chunk"
	TypeAudioStop  = "audio-stop"
	TypeTranscript = "transcript"
	TypeError      = "error"
)

// Event is one Wyoming protocol event: a JSON header line, optionally
// followed by a binary payload (PCM frames for audio-chunk).
type Event struct {
	Type    string
	Data    json.RawMessage
	Payload []byte
}

type eventHeader struct {
	Type          string          `json:"type"`
	Data          json.RawMessage `json:"data,omitempty"`
	DataLength    *int            `json:"data_length,omitempty"`
	PayloadLength *int            `json:"payload_length,omitempty"`
}

// WriteEvent writes ev as a header line with inline data, followed by the
// payload bytes when present.
func WriteEvent(w io.Writer, ev Event) error {
	hdr := eventHeader{Type: ev.Type, Data: ev.Data}
	if len(ev.Payload) > 0 {
		n := len(ev.Payload)
		hdr.PayloadLength = &n
	}
	line, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("marshal %s header: %w", ev.Type, err)
	}
	line = append(line, '\n')
	if _, err := w.Write(line); err != nil {
		return err
	}
	if len(ev.Payload) > 0 {
		if _, err := w.Write(ev.Payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadEvent reads the next event. It accepts both framing variants in the
// wild: inline data in the header, or a separate data block announced via
// data_length.
func ReadEvent(r *bufio.Reader) (Event, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return Event{}, err
	}
	var hdr eventHeader
	if err := json.Unmarshal(line, &hdr); err != nil {
		return Event{}, fmt.Errorf("malformed event header: %w", err)
	}
	if hdr.Type == "" {
		return Event{}, fmt.Errorf("event header missing type")
	}

	ev := Event{Type: hdr.Type, Data: hdr.Data}

	if hdr.DataLength != nil && *hdr.DataLength > 0 {
		buf := make([]byte, *hdr.DataLength)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Event{}, fmt.Errorf("read event data: %w", err)
		}
		ev.Data = buf
	}
	if hdr.PayloadLength != nil && *hdr.PayloadLength > 0 {
		buf := make([]byte, *hdr.PayloadLength)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Event{}, fmt.Errorf("read event payload: %w", err)
		}
		ev.Payload = buf
	}
	return ev, nil
}

func marshalData(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// All callers pass plain structs; a marshal failure is a bug.
		panic("wyoming: marshal event data: " + err.Error())
	}
	return data
}
