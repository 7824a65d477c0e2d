package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"whisperkey/encoder"
	"whisperkey/log"
	"whisperkey/orchestrator"
)

// archiver keeps a FLAC copy of every recording next to transcribing it.
// Encoding failures are logged and never block the pipeline.
type archiver struct {
	next orchestrator.Transcriber
	dir  string
}

func newArchiver(next orchestrator.Transcriber, dir string) *archiver {
	return &archiver{next: next, dir: dir}
}

func (a *archiver) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	a.save(samples)
	return a.next.Transcribe(ctx, samples, sampleRate)
}

func (a *archiver) save(samples []float32) {
	if len(samples) == 0 {
		return
	}
	if err := os.MkdirAll(a.dir, 0755); err != nil {
		log.Warnf("audio archive: %v", err)
		return
	}
	enc, err := encoder.NewFlac()
	if err != nil {
		log.Warnf("audio archive: %v", err)
		return
	}
	if err := enc.EncodeFloat32(samples); err != nil {
		log.Warnf("audio archive: %v", err)
		return
	}
	if err := enc.Close(); err != nil {
		log.Warnf("audio archive: %v", err)
		return
	}
	path := filepath.Join(a.dir, time.Now().Format("20060102-150405")+".flac")
	if err := os.WriteFile(path, enc.Bytes(), 0644); err != nil {
		log.Warnf("audio archive: %v", err)
	}
}
