package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/exec"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/atotto/clipboard"

	"whisperkey/audio"
	"whisperkey/backend"
	"whisperkey/beep"
	"whisperkey/delivery"
	"whisperkey/doctor"
	"whisperkey/hotkey"
	"whisperkey/log"
	"whisperkey/models"
	"whisperkey/orchestrator"
	"whisperkey/shutdown"
	"whisperkey/tray"
	"whisperkey/update"
	"whisperkey/wyoming"
)

var version = "dev"

const healthWait = 90 * time.Second

var shutdownOnce sync.Once

func gracefulShutdown() {
	shutdownOnce.Do(func() {
		log.Close()
		tray.Quit()
		tuiQuit()
		os.Exit(0)
	})
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}
}

func runUpdate() {
	if version == "dev" {
		fmt.Println("Dev build, cannot check for updates.")
		os.Exit(0)
	}
	fmt.Printf("whisperkey %s, checking for updates...\n", version)
	rel, err := update.CheckLatest(version)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if rel == nil {
		fmt.Println("Already up to date.")
		os.Exit(0)
	}
	fmt.Printf("Update available: %s -> %s\n", version, rel.Version)
	fmt.Print("Continue? [y/N] ")
	var answer string
	fmt.Scanln(&answer)
	if answer != "y" && answer != "Y" {
		fmt.Println("Aborted.")
		os.Exit(0)
	}
	fmt.Printf("Downloading %s...\n", rel.Version)
	if err := update.Apply(rel); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Updated to %s\n", rel.Version)
	os.Exit(0)
}

func run() {
	if len(os.Args) > 1 && os.Args[1] == "update" {
		runUpdate()
	}

	fl, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg := fl.cfg

	logPath, err := log.ResolveDir(fl.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	if fl.profile != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", fl.profile)
			if err := http.ListenAndServe(fl.profile, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if fl.crash {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}
	if fl.version {
		fmt.Printf("whisperkey %s\n", version)
		os.Exit(0)
	}
	if fl.doctor {
		combo, _ := hotkey.ParseCombo(cfg.ToggleKey)
		os.Exit(doctor.Run(doctor.Options{
			Server:  cfg.Server,
			Managed: cfg.Managed,
			Toggle:  combo,
		}))
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}

	if cfg.NoBeep {
		beep.Disable()
	}

	if fl.test {
		runTestMode(cfg, fl.testWAV)
		return
	}

	// Daemonize in background mode: re-exec detached, return shell prompt
	if !cfg.TUI && os.Getenv("_WHISPERKEY_BG") == "" {
		exe, _ := os.Executable()
		cmd := exec.Command(exe, os.Args[1:]...)
		cmd.Env = append(os.Environ(), "_WHISPERKEY_BG=1")
		devnull, _ := os.Open(os.DevNull)
		cmd.Stdin, cmd.Stdout, cmd.Stderr = devnull, devnull, devnull
		if err := cmd.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	modelCfg := orchestrator.ModelConfig{
		Model:    cfg.Model,
		Beam:     cfg.Beam,
		Language: cfg.Language,
	}

	// Backend: bring the container up before the first health probe so a
	// cold start does not eat into the wait budget.
	var mgr *backend.Manager
	if cfg.Managed {
		engine, err := backend.NewDockerEngine()
		if err != nil {
			log.Warnf("docker unavailable, running unmanaged: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: docker unavailable, running unmanaged: %v\n", err)
		} else {
			_, port := wyoming.ParseAddr(cfg.Server)
			mgr = backend.NewManager(backend.Config{
				Port: port,
				Defaults: backend.Params{
					Model:    models.CanonicalFor(cfg.Model),
					Beam:     cfg.Beam,
					Language: cfg.Language,
				},
			}, engine)
			bctx, cancel := context.WithTimeout(context.Background(), healthWait)
			st := mgr.Start(bctx)
			cancel()
			log.BackendStatus(mgr.Name(), string(st))
			if st != backend.StatusRunning {
				fmt.Fprintf(os.Stderr, "Warning: backend container is %s\n", st)
			}
		}
	}

	client := wyoming.NewClient(cfg.Server, 2*time.Minute)
	client.SetModel(models.CanonicalFor(cfg.Model))
	client.SetBeam(cfg.Beam)
	client.SetLanguage(models.NormalizeLanguage(cfg.Language))

	waitForServer(client)

	ctx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	defer ctx.Close()

	device, _ := audio.PickDevice(ctx, cfg.Device)

	orchRef := &orchRelay{}

	monitor, monErr := audio.NewVoiceMonitor(
		func() bool { return true },
		func(ev audio.SilenceEvent) { orchRef.onSilence(ev) },
	)
	if monErr != nil {
		log.Warnf("voice detection unavailable: %v", monErr)
	}

	recorder := audio.NewRecorder(ctx, device, audio.RecorderConfig{
		SampleRate:  audio.DefaultSampleRate,
		MaxDuration: cfg.MaxDuration,
		OnMaxDuration: func() {
			log.Info("max_duration_reached")
			orchRef.stop()
		},
		Observer: func(data []byte, frames uint32) {
			if monitor != nil {
				monitor.Process(data, frames)
			}
			tuiSendLevel(rmsLevel(data))
		},
	})

	var transcriber orchestrator.Transcriber = client
	if cfg.SaveAudio != "" {
		transcriber = newArchiver(transcriber, cfg.SaveAudio)
	}

	deliverer := delivery.New(delivery.Options{RestoreClipboard: cfg.RestoreClipboard})

	orch := orchestrator.New(orchestrator.Options{
		Recorder:     recorder,
		Transcriber:  transcriber,
		Delivery:     &notifyingDelivery{next: deliverer},
		Reconfigurer: newReconfigurer(mgr, client),
		Feedback:     beep.Player{},
		Status: statusFan{
			trayStatus{enabled: cfg.Tray},
			monitorStatus{monitor: monitor},
			tuiStatus{},
		},
		Config:     modelCfg,
		SampleRate: audio.DefaultSampleRate,
	})
	orchRef.set(orch, cfg.AutoSubmit)

	toggleCombo, _ := hotkey.ParseCombo(cfg.ToggleKey)
	toggleHK, err := hotkey.New(toggleCombo)
	if err != nil {
		log.Errorf("hotkey init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	var cancelHK hotkey.Hotkey
	if cfg.CancelKey != "" {
		combo, _ := hotkey.ParseCombo(cfg.CancelKey)
		if cancelHK, err = hotkey.New(combo); err != nil {
			log.Warnf("cancel hotkey init error: %v", err)
		}
	}

	controller := hotkey.NewController(toggleHK, cancelHK, hotkey.Actions{
		Start:  func() { orch.Toggle(cfg.AutoSubmit) },
		Stop:   func() { orch.StopAndTranscribe(cfg.AutoSubmit) },
		Cancel: func() { orch.Cancel() },
	})
	if err := controller.Run(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		fmt.Fprintf(os.Stderr, "Error registering hotkey: %v\n", err)
		os.Exit(1)
	}
	defer controller.Close()

	if mgr != nil {
		go pollBackend(mgr, cfg.Tray)
	}

	go beep.Init()

	update.StartBackgroundCheck(version, log.Dir(), func(rel update.Release) {
		log.Info("update_available: " + rel.Version)
	})

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		gracefulShutdown()
	}()

	log.Info(fmt.Sprintf("ready: server=%s model=%s beam=%d lang=%s toggle=%s",
		cfg.Server, cfg.Model, cfg.Beam, cfg.Language, cfg.ToggleKey))

	if cfg.TUI {
		startTUI(cfg, orch)
	}

	if cfg.Tray {
		runTray(cfg, orch)
		gracefulShutdown()
		return
	}

	select {}
}

// waitForServer blocks until the ASR endpoint answers, then logs its
// advertised models. Startup continues on timeout; transcription will
// surface the connection error.
func waitForServer(client *wyoming.Client) {
	deadline := time.Now().Add(healthWait)
	for !client.HealthCheck() {
		if time.Now().After(deadline) {
			log.Warn("server not reachable at startup")
			fmt.Fprintln(os.Stderr, "Warning: transcription server not reachable")
			return
		}
		time.Sleep(time.Second)
	}
	dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if names, err := client.Models(dctx, 0); err == nil {
		log.Info(fmt.Sprintf("server models: %v", names))
	}
}

func pollBackend(mgr *backend.Manager, trayEnabled bool) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	var last backend.Status
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		st := mgr.Status(ctx)
		cancel()
		if st != last {
			last = st
			log.BackendStatus(mgr.Name(), string(st))
			if trayEnabled {
				tray.SetBackendStatus(string(st))
			}
			tuiSendBackendStatus(string(st))
		}
	}
}

func runTray(cfg Config, orch *orchestrator.Orchestrator) {
	tray.Run(tray.Options{
		Models:         models.Aliases(),
		ActiveModel:    models.AliasFor(models.CanonicalFor(cfg.Model)),
		ActiveLanguage: cfg.Language,
		Tooltip:        "whisperkey " + version,
	}, tray.Callbacks{
		OnToggle: func() { orch.Toggle(cfg.AutoSubmit) },
		OnCancel: func() { orch.Cancel() },
		OnCopyLast: func() {
			if text := orch.LastTranscript(); text != "" {
				clipboard.WriteAll(text)
			}
		},
		OnModel: func(alias string) {
			c := orch.Config()
			c.Model = alias
			if orch.RequestReconfigure(c) {
				tray.SetActiveModel(alias)
			}
		},
		OnLanguage: func(code string) {
			c := orch.Config()
			c.Language = code
			if orch.RequestReconfigure(c) {
				tray.SetActiveLanguage(code)
			}
		},
		OnQuit: gracefulShutdown,
	})
}

// orchRelay breaks the construction cycle between the orchestrator and
// the callbacks (silence monitor, max-duration cap) that need it.
type orchRelay struct {
	mu         sync.Mutex
	orch       *orchestrator.Orchestrator
	autoSubmit bool
}

func (r *orchRelay) set(o *orchestrator.Orchestrator, autoSubmit bool) {
	r.mu.Lock()
	r.orch = o
	r.autoSubmit = autoSubmit
	r.mu.Unlock()
}

func (r *orchRelay) get() (*orchestrator.Orchestrator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orch, r.autoSubmit
}

func (r *orchRelay) stop() {
	if o, autoSubmit := r.get(); o != nil {
		o.StopAndTranscribe(autoSubmit)
	}
}

func (r *orchRelay) onSilence(ev audio.SilenceEvent) {
	o, _ := r.get()
	if o == nil {
		return
	}
	switch ev {
	case audio.SilenceWarn, audio.SilenceRepeat:
		log.Info("no_voice_warning")
		go beep.PlayCancel()
	case audio.SilenceAutoStop:
		log.Info("silence_auto_stop")
		o.Cancel()
	}
}

// notifyingDelivery publishes the transcript to the UI surfaces after the
// real delivery succeeds.
type notifyingDelivery struct {
	next orchestrator.Delivery
}

func (d *notifyingDelivery) Deliver(text string, autoSubmit bool) error {
	if err := d.next.Deliver(text, autoSubmit); err != nil {
		return err
	}
	tray.SetLastTranscript(text)
	tuiSendTranscript(text)
	return nil
}

// statusFan forwards state changes to every registered sink.
type statusFan []orchestrator.StatusSink

func (f statusFan) SetState(s orchestrator.State) {
	for _, sink := range f {
		sink.SetState(s)
	}
}

type trayStatus struct{ enabled bool }

func (t trayStatus) SetState(s orchestrator.State) {
	if t.enabled {
		tray.SetState(s.String())
	}
}

// monitorStatus brackets the silence watcher around each recording.
type monitorStatus struct{ monitor *audio.VoiceMonitor }

func (m monitorStatus) SetState(s orchestrator.State) {
	if m.monitor == nil {
		return
	}
	if s == orchestrator.StateRecording {
		m.monitor.Start()
	} else {
		m.monitor.Stop()
	}
}

type tuiStatus struct{}

func (tuiStatus) SetState(s orchestrator.State) {
	tuiSendState(s)
}

func rmsLevel(data []byte) float64 {
	if len(data) < 2 {
		return 0
	}
	var sumSquares float64
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(data[i:]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(len(data)/2))
}
