package doctor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"whisperkey/audio"
	"whisperkey/backend"
	"whisperkey/delivery"
	"whisperkey/hotkey"
	"whisperkey/wyoming"
)

// Options carries the runtime configuration the checks need.
type Options struct {
	Server  string
	Managed bool
	Toggle  hotkey.Combo
}

// Run executes interactive diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(opts Options) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("whisperkey doctor - interactive system diagnostics")
	fmt.Println("==================================================")

	allPass := true

	if !checkHotkey(opts.Toggle) {
		allPass = false
	}
	if allPass && opts.Managed && !checkBackend() {
		allPass = false
	}
	if allPass && !checkServer(opts.Server) {
		allPass = false
	}
	if allPass && !checkMicAndTranscription(opts.Server) {
		allPass = false
	}
	if allPass && !checkDelivery() {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
	} else {
		fmt.Println("Some checks failed. See details above.")
	}

	if allPass {
		return 0
	}
	return 1
}

func checkHotkey(combo hotkey.Combo) bool {
	fmt.Println()
	fmt.Println("[1/5] Hotkey detection")
	fmt.Printf("Press %s...\n", combo)

	hk, err := hotkey.New(combo)
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	if err := hk.Register(); err != nil {
		fmt.Printf("  FAIL: could not register hotkey: %v\n", err)
		return false
	}
	defer hk.Unregister()

	select {
	case <-hk.Keydown():
		fmt.Println("  PASS: hotkey detected")
		// Wait for keyup to avoid triggering next step
		select {
		case <-hk.Keyup():
		case <-time.After(5 * time.Second):
		}
		// Reset terminal after hotkey - it may leave terminal in raw mode
		resetTerminal()
		return true
	case <-time.After(10 * time.Second):
		fmt.Println("  FAIL: timeout waiting for hotkey")
		return false
	}
}

func checkBackend() bool {
	fmt.Println()
	fmt.Println("[2/5] Docker backend")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	engine, err := backend.NewDockerEngine()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to docker: %v\n", err)
		fmt.Println("  Is the docker daemon running and your user in the docker group?")
		return false
	}
	mgr := backend.NewManager(backend.Config{}, engine)

	if !mgr.IsAvailable(ctx) {
		fmt.Println("  FAIL: docker daemon not reachable")
		return false
	}

	st := mgr.Status(ctx)
	fmt.Printf("  Container status: %s\n", st)
	if st != backend.StatusRunning {
		fmt.Println("  Starting container...")
		if st = mgr.Start(ctx); st != backend.StatusRunning {
			fmt.Printf("  FAIL: start left container %s\n", st)
			return false
		}
	}
	fmt.Println("  PASS: backend container running")
	return true
}

func checkServer(addr string) bool {
	fmt.Println()
	fmt.Println("[3/5] Transcription server")

	client := wyoming.NewClient(addr, 10*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deadline := time.Now().Add(25 * time.Second)
	for !client.HealthCheck() {
		if time.Now().After(deadline) {
			fmt.Printf("  FAIL: server not reachable at %s\n", addr)
			return false
		}
		time.Sleep(time.Second)
	}

	info, err := client.Describe(ctx)
	if err != nil {
		fmt.Printf("  FAIL: describe: %v\n", err)
		return false
	}
	for _, p := range info.ASR {
		fmt.Printf("  Service: %s (%d models)\n", p.Name, len(p.Models))
	}
	fmt.Println("  PASS: server reachable")
	return true
}

func checkMicAndTranscription(addr string) bool {
	fmt.Println()
	fmt.Println("[4/5] Microphone and transcription")

	reader := bufio.NewReader(os.Stdin)

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer ctx.Close()

	devices, err := ctx.Devices()
	if err != nil {
		fmt.Printf("  FAIL: cannot list devices: %v\n", err)
		return false
	}
	if len(devices) == 0 {
		fmt.Println("  FAIL: no capture devices found")
		return false
	}

	var device *audio.DeviceInfo
	if len(devices) == 1 {
		device = &devices[0]
		fmt.Printf("Using device: %s\n", device.Name)
	} else {
		fmt.Println()
		fmt.Println("Select input device:")
		for i, d := range devices {
			fmt.Printf("  %d. %s\n", i+1, d.Name)
		}
		fmt.Printf("Choice [1-%d]: ", len(devices))

		devChoice, _ := reader.ReadString('\n')
		devChoice = strings.TrimSpace(devChoice)
		idx := 0
		if devChoice != "" {
			fmt.Sscanf(devChoice, "%d", &idx)
			idx--
		}
		if idx < 0 || idx >= len(devices) {
			fmt.Printf("  FAIL: invalid choice\n")
			return false
		}
		device = &devices[idx]
		fmt.Printf("Selected: %s\n", device.Name)
	}

	fmt.Println()
	fmt.Print("Press Enter and speak for 3 seconds...")
	reader.ReadString('\n')

	stop := make(chan struct{})
	go func() {
		time.Sleep(3 * time.Second)
		close(stop)
	}()

	samples, err := recordAudio(ctx, device, stop)
	if err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		return false
	}
	if len(samples) == 0 {
		fmt.Println("  FAIL: no audio captured")
		return false
	}

	fmt.Printf("  Recorded %.1fs, transcribing...\n", float64(len(samples))/float64(audio.DefaultSampleRate))

	client := wyoming.NewClient(addr, 60*time.Second)

	tctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	text, err := client.Transcribe(tctx, samples, audio.DefaultSampleRate)
	if err != nil {
		fmt.Printf("  FAIL: transcription error: %v\n", err)
		return false
	}

	text = strings.TrimSpace(text)
	if text == "" {
		text = "(no speech detected)"
	}

	fmt.Printf("\n  Transcribed text: %s\n\n", text)

	// Ask user to confirm - fresh reader to clear any buffered input
	confirmReader := bufio.NewReader(os.Stdin)
	fmt.Print("Is this correct? [y/n]: ")
	confirm, _ := confirmReader.ReadString('\n')
	confirm = strings.TrimSpace(strings.ToLower(confirm))

	if confirm == "y" || confirm == "yes" {
		fmt.Println("  PASS: transcription verified by user")
		return true
	}

	fmt.Println("  FAIL: transcription not confirmed")
	return false
}

func recordAudio(ctx audio.Context, device *audio.DeviceInfo, stop <-chan struct{}) ([]float32, error) {
	var buf []float32
	var bufMu sync.Mutex
	var stopped bool
	done := make(chan struct{})

	config := audio.CaptureConfig{
		SampleRate: audio.DefaultSampleRate,
		Channels:   1,
	}

	captureDevice, err := ctx.NewCapture(device, config)
	if err != nil {
		return nil, err
	}

	cb := audio.DataCallback(func(data []byte, frameCount uint32) {
		bufMu.Lock()
		if stopped {
			bufMu.Unlock()
			return
		}
		for i := 0; i+1 < len(data); i += 2 {
			s := int16(uint16(data[i]) | uint16(data[i+1])<<8)
			buf = append(buf, float32(s)/32768)
		}
		bufMu.Unlock()
	})
	captureDevice.SetCallback(cb)

	if err := captureDevice.Start(); err != nil {
		captureDevice.Close()
		return nil, err
	}

	fmt.Print("  Recording")
	ticker := time.NewTicker(500 * time.Millisecond)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	<-stop
	close(done)

	captureDevice.Stop()
	fmt.Println(" done")
	captureDevice.Close()

	bufMu.Lock()
	stopped = true
	raw := buf
	bufMu.Unlock()

	return raw, nil
}

func checkDelivery() bool {
	fmt.Println()
	fmt.Println("[5/5] Clipboard and paste")

	fmt.Println("Focus on a text editor window...")
	for i := 5; i > 0; i-- {
		fmt.Printf("  %d...\n", i)
		time.Sleep(1 * time.Second)
	}

	d := delivery.New(delivery.Options{RestoreClipboard: true})
	if err := d.Deliver("whisperkey-doctor-test", false); err != nil {
		fmt.Printf("  FAIL: delivery failed: %v\n", err)
		return false
	}

	// Reset terminal and use fresh reader for confirmation
	resetTerminal()
	confirmReader := bufio.NewReader(os.Stdin)
	fmt.Println()
	fmt.Print("Did the text \"whisperkey-doctor-test\" appear? [y/n]: ")
	confirm, _ := confirmReader.ReadString('\n')
	confirm = strings.TrimSpace(strings.ToLower(confirm))

	if confirm != "y" && confirm != "yes" {
		fmt.Println("  FAIL: clipboard/paste not confirmed")
		return false
	}
	fmt.Println("  PASS: clipboard and paste verified by user")
	return true
}
