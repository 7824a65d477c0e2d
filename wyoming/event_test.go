package wyoming

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
)

func TestEventRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	ev := Event{
		Type:    TypeAudioChunk,
		Data:    marshalData(audioFormatData{Rate: 16000, Width: 2, Channels: 1}),
		Payload: payload,
	}
	if err := WriteEvent(&buf, ev); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	got, err := ReadEvent(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if got.Type != TypeAudioChunk {
		t.Errorf("Type = %q", got.Type)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Errorf("Payload = %v, want %v", got.Payload, payload)
	}
	var fmtData audioFormatData
	if err := json.Unmarshal(got.Data, &fmtData); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if fmtData.Rate != 16000 || fmtData.Width != 2 || fmtData.Channels != 1 {
		t.Errorf("data = %+v", fmtData)
	}
}

func TestReadEventDataLengthVariant(t *testing.T) {
	// Some servers send the data block separately, announced by
	// data_length, instead of inlining it in the header.
	var buf bytes.Buffer
	buf.WriteString(`{"type":"transcript","data_length":16,"payload_length":2}` + "\n")
	buf.WriteString(`{"text":"hello"}`)
	buf.Write([]byte{0xAA, 0xBB})

	ev, err := ReadEvent(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	var td transcriptData
	if err := json.Unmarshal(ev.Data, &td); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if td.Text != "hello" {
		t.Errorf("text = %q", td.Text)
	}
	if len(ev.Payload) != 2 {
		t.Errorf("payload length = %d", len(ev.Payload))
	}
}

func TestReadEventRejectsMissingType(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(`{"data":{}}` + "\n")
	if _, err := ReadEvent(bufio.NewReader(&buf)); err == nil {
		t.Fatal("expected error for header without type")
	}
}

func TestWriteEventOmitsEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEvent(&buf, Event{Type: TypeAudioStop}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	line := buf.String()
	if bytes.Contains([]byte(line), []byte("payload_length")) {
		t.Errorf("header should omit payload_length: %s", line)
	}
}
