package audio

import (
	"os"
	"sync"
	"time"
)

const replayChunkFrames = 1024

// FakeContext replays a WAV file in place of a microphone. In realtime
// mode chunks are paced at the sample rate; otherwise the whole file is
// delivered synchronously on Start. Either way the capture keeps feeding
// silence after the file ends, like a real mic with nobody talking.
type FakeContext struct {
	pcm      []byte
	realtime bool
}

func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return &FakeContext{pcm: data, realtime: realtime}, nil
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return nil, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{pcm: f.pcm, realtime: f.realtime, audioDone: make(chan struct{})}, nil
}

type FakeCapture struct {
	pcm       []byte
	realtime  bool
	audioDone chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
}

// AudioDone closes once the WAV content has been fully delivered.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) loadCallback() DataCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) emit(pos int) int {
	cb := f.loadCallback()
	if cb == nil {
		return pos
	}
	end := min(pos+replayChunkFrames*2, len(f.pcm))
	chunk := make([]byte, end-pos)
	copy(chunk, f.pcm[pos:end])
	cb(chunk, uint32(len(chunk)/2))
	return end
}

func (f *FakeCapture) Start() error {
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	// audioDone is NOT recreated here -- callers may already be waiting
	// on it. Stop resets it for replay.

	if !f.realtime {
		for pos := 0; pos < len(f.pcm); {
			pos = f.emit(pos)
		}
		close(f.audioDone)
		go f.feedSilence(time.Millisecond)
		return nil
	}

	interval := time.Duration(replayChunkFrames) * time.Second / time.Duration(DefaultSampleRate)
	go func() {
		pos := 0
		for pos < len(f.pcm) {
			select {
			case <-f.stopCh:
				close(f.feedDone)
				return
			case <-time.After(interval):
			}
			pos = f.emit(pos)
		}
		close(f.audioDone)
		f.feedSilence(interval)
	}()
	return nil
}

// feedSilence keeps the callback ticking with empty frames until Stop.
func (f *FakeCapture) feedSilence(interval time.Duration) {
	defer close(f.feedDone)
	silence := make([]byte, replayChunkFrames*2)
	for {
		select {
		case <-f.stopCh:
			return
		case <-time.After(interval):
		}
		if cb := f.loadCallback(); cb != nil {
			cb(silence, replayChunkFrames)
		}
	}
}

func (f *FakeCapture) Stop() {
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	if f.feedDone != nil {
		<-f.feedDone
	}
	f.audioDone = make(chan struct{}) // reset for replay
}

func (f *FakeCapture) Close() {}
