package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"whisperkey/audio"
	"whisperkey/beep"
	"whisperkey/hotkey"
	"whisperkey/log"
	"whisperkey/orchestrator"
	"whisperkey/wyoming"
)

// trackingContext remembers the most recent fake capture so the stdin
// driver can wait for WAV playback to finish.
type trackingContext struct {
	*audio.FakeContext

	mu   sync.Mutex
	last *audio.FakeCapture
}

func (t *trackingContext) NewCapture(device *audio.DeviceInfo, cfg audio.CaptureConfig) (audio.CaptureDevice, error) {
	capture, err := t.FakeContext.NewCapture(device, cfg)
	if err == nil {
		t.mu.Lock()
		t.last = capture.(*audio.FakeCapture)
		t.mu.Unlock()
	}
	return capture, err
}

func (t *trackingContext) lastCapture() *audio.FakeCapture {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// idleSink signals every transition back to idle so WAIT can block until
// the pipeline has fully finished.
type idleSink struct{ ch chan struct{} }

func (s idleSink) SetState(st orchestrator.State) {
	if st == orchestrator.StateIdle {
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
}

type nopDelivery struct{}

func (nopDelivery) Deliver(string, bool) error { return nil }

type nopReconfigurer struct{}

func (nopReconfigurer) Apply(orchestrator.ModelConfig) error { return nil }

// runTestMode drives the full pipeline headlessly from stdin commands,
// replaying a WAV file instead of the microphone and transcribing against
// a loopback ASR server. Hotkey semantics are hold-to-talk: KEYDOWN
// starts, KEYUP stops.
func runTestMode(cfg Config, wavPath string) {
	beep.Disable()

	addr, stopServer := startLoopbackASR()
	defer stopServer()

	fakeCtx, err := audio.NewFakeContext(wavPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		os.Exit(1)
	}
	ctx := &trackingContext{FakeContext: fakeCtx}

	recorder := audio.NewRecorder(ctx, nil, audio.RecorderConfig{
		SampleRate: audio.DefaultSampleRate,
	})

	client := wyoming.NewClient(addr, 10*time.Second)

	idle := idleSink{ch: make(chan struct{}, 1)}
	orch := orchestrator.New(orchestrator.Options{
		Recorder:     recorder,
		Transcriber:  client,
		Delivery:     nopDelivery{},
		Reconfigurer: nopReconfigurer{},
		Status:       idle,
		Config: orchestrator.ModelConfig{
			Model:    cfg.Model,
			Beam:     cfg.Beam,
			Language: cfg.Language,
		},
		SampleRate: audio.DefaultSampleRate,
	})

	hk := hotkey.NewFake()
	go func() {
		for {
			<-hk.Keydown()
			orch.Toggle(false)
			<-hk.Keyup()
			orch.StopAndTranscribe(false)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch cmd {
		case "KEYDOWN":
			hk.SimKeydown()
		case "KEYUP":
			hk.SimKeyup()
		case "WAIT":
			<-idle.ch
		case "WAIT_AUDIO_DONE":
			for !recorder.Active() {
				time.Sleep(time.Millisecond)
			}
			<-ctx.lastCapture().AudioDone()
		case "QUIT":
			log.Close()
			os.Exit(0)
		default:
			if strings.HasPrefix(cmd, "SLEEP ") {
				if ms, err := strconv.Atoi(cmd[6:]); err == nil {
					time.Sleep(time.Duration(ms) * time.Millisecond)
				}
			}
		}
	}
}

// startLoopbackASR serves a minimal Wyoming endpoint on a random local
// port. It answers describe with one model and, after audio-stop, returns
// a fixed phrase when the audio carried any signal and an empty
// transcript for pure silence.
func startLoopbackASR() (addr string, stop func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: loopback server: %v\n", err)
		os.Exit(1)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveLoopback(conn)
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func serveLoopback(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	var hasSignal bool
	for {
		ev, err := wyoming.ReadEvent(r)
		if err != nil {
			return
		}
		switch ev.Type {
		case wyoming.TypeDescribe:
			info, _ := json.Marshal(map[string]any{
				"asr": []map[string]any{{
					"name":   "loopback",
					"models": []map[string]any{{"name": "turbo"}},
				}},
			})
			if err := wyoming.WriteEvent(conn, wyoming.Event{Type: wyoming.TypeInfo, Data: info}); err != nil {
				return
			}
		case wyoming.TypeAudioStart:
			hasSignal = false
		case wyoming.TypeAudioChunk:
			for i := 0; i+1 < len(ev.Payload); i += 2 {
				if s := int16(binary.LittleEndian.Uint16(ev.Payload[i:])); s > 300 || s < -300 {
					hasSignal = true
					break
				}
			}
		case wyoming.TypeAudioStop:
			text := ""
			if hasSignal {
				text = "the quick brown fox jumps over the lazy dog"
			}
			data, _ := json.Marshal(map[string]string{"text": text})
			if err := wyoming.WriteEvent(conn, wyoming.Event{Type: wyoming.TypeTranscript, Data: data}); err != nil {
				return
			}
		}
	}
}
