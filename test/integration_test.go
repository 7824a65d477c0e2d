//go:build integration

package test_test

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var testBinary string

func TestMain(m *testing.M) {
	testBinary = os.Getenv("WHISPERKEY_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "WHISPERKEY_TEST_BIN not set; run: make test-integration")
		os.Exit(1)
	}

	if err := os.MkdirAll("data", 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data dir: %v\n", err)
		os.Exit(1)
	}
	silencePath := filepath.Join("data", "silence.wav")
	tonePath := filepath.Join("data", "tone.wav")
	if err := generateWAV(silencePath, 16000, 1.0, 0); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate silence.wav: %v\n", err)
		os.Exit(1)
	}
	if err := generateWAV(tonePath, 16000, 1.0, 8000); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate tone.wav: %v\n", err)
		os.Exit(1)
	}
	defer os.Remove(silencePath)
	defer os.Remove(tonePath)

	os.Exit(m.Run())
}

// generateWAV writes a mono 16-bit WAV holding a 440Hz sine at the given
// amplitude (0 = silence).
func generateWAV(path string, sampleRate int, durationS float64, amplitude float64) error {
	const headerSize = 44
	numSamples := int(float64(sampleRate) * durationS)
	dataSize := numSamples * 2

	buf := make([]byte, headerSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(headerSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i := 0; i < numSamples; i++ {
		s := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(buf[headerSize+i*2:], uint16(s))
	}

	return os.WriteFile(path, buf, 0644)
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

func runBinary(t *testing.T, stdin string, args ...string) (logDir string) {
	t.Helper()
	logDir = t.TempDir()
	cmdArgs := append([]string{"-logpath", logDir}, args...)

	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = os.Environ()

	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("whisperkey exited with error: %v\noutput: %s", err, out)
	}
	return logDir
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

func TestTranscribesTone(t *testing.T) {
	logDir := runBinary(t, cmds("KEYDOWN", "WAIT_AUDIO_DONE", "KEYUP", "WAIT", "QUIT"),
		"-test", "data/tone.wav")
	text := readLog(t, logDir, "transcribe_log.txt")
	if strings.TrimSpace(text) == "" {
		t.Fatal("transcribe_log.txt is empty, expected transcribed words")
	}
}

func TestSilenceProducesNoTranscript(t *testing.T) {
	logDir := runBinary(t, cmds("KEYDOWN", "WAIT_AUDIO_DONE", "KEYUP", "WAIT", "QUIT"),
		"-test", "data/silence.wav")
	text := readLog(t, logDir, "transcribe_log.txt")
	if strings.TrimSpace(text) != "" {
		t.Errorf("expected empty transcript for silence, got %q", text)
	}
	diag := readLog(t, logDir, "diagnostics_log.txt")
	if !strings.Contains(diag, "no speech detected") {
		t.Error("expected no-speech entry in diagnostics")
	}
}

func TestBackToBackRecordings(t *testing.T) {
	logDir := runBinary(t,
		cmds("KEYDOWN", "WAIT_AUDIO_DONE", "KEYUP", "WAIT",
			"KEYDOWN", "WAIT_AUDIO_DONE", "KEYUP", "WAIT", "QUIT"),
		"-test", "data/tone.wav")
	diag := readLog(t, logDir, "diagnostics_log.txt")
	if strings.Count(diag, `"transcription"`) < 2 {
		t.Error("expected 2 transcription entries in diagnostics")
	}
}

func TestEarlyKeyup(t *testing.T) {
	logDir := runBinary(t, cmds("KEYDOWN", "SLEEP 100", "KEYUP", "WAIT", "QUIT"),
		"-test", "data/tone.wav")
	_ = readLog(t, logDir, "diagnostics_log.txt")
}
