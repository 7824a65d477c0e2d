package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"whisperkey/hotkey"
)

// Config is the merged runtime configuration: built-in defaults, then the
// optional TOML file, then command-line flags.
type Config struct {
	Server           string        `toml:"server"`
	Managed          bool          `toml:"managed"`
	Model            string        `toml:"model"`
	Beam             int           `toml:"beam"`
	Language         string        `toml:"language"`
	ToggleKey        string        `toml:"toggle_key"`
	CancelKey        string        `toml:"cancel_key"`
	HoldThreshold    time.Duration `toml:"-"`
	HoldThresholdStr string        `toml:"hold_threshold"`
	Device           string        `toml:"device"`
	AutoSubmit       bool          `toml:"auto_submit"`
	RestoreClipboard bool          `toml:"restore_clipboard"`
	MaxDuration      time.Duration `toml:"-"`
	MaxDurationStr   string        `toml:"max_duration"`
	SaveAudio        string        `toml:"save_audio"`
	NoBeep           bool          `toml:"no_beep"`
	TUI              bool          `toml:"tui"`
	Tray             bool          `toml:"tray"`
}

func defaultConfig() Config {
	return Config{
		Server:           "localhost:10300",
		Managed:          true,
		Model:            "turbo",
		Beam:             5,
		Language:         "en",
		ToggleKey:        hotkey.DefaultToggle,
		CancelKey:        hotkey.DefaultCancel,
		HoldThreshold:    hotkey.DefaultHoldThreshold,
		AutoSubmit:       false,
		RestoreClipboard: true,
		MaxDuration:      2 * time.Minute,
		TUI:              false,
		Tray:             true,
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "whisperkey", "config.toml")
}

// loadConfigFile merges the TOML file at path into cfg. A missing file is
// only an error when the user named it explicitly.
func loadConfigFile(cfg *Config, path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return fmt.Errorf("config file %s not found", path)
		}
		return nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.HoldThresholdStr != "" {
		d, err := time.ParseDuration(cfg.HoldThresholdStr)
		if err != nil {
			return fmt.Errorf("hold_threshold: %w", err)
		}
		cfg.HoldThreshold = d
	}
	if cfg.MaxDurationStr != "" {
		d, err := time.ParseDuration(cfg.MaxDurationStr)
		if err != nil {
			return fmt.Errorf("max_duration: %w", err)
		}
		cfg.MaxDuration = d
	}
	return nil
}

type cliFlags struct {
	cfg        Config
	configPath string
	logPath    string
	profile    string
	version    bool
	doctor     bool
	crash      bool
	test       bool
	testWAV    string
}

// parseFlags builds the effective Config. Flags the user set on the
// command line win over the config file; everything else keeps the file
// value or the built-in default.
func parseFlags() (*cliFlags, error) {
	def := defaultConfig()

	configFlag := flag.String("config", "", "Config file path (default: "+defaultConfigPath()+")")
	serverFlag := flag.String("server", def.Server, "Wyoming server address (host:port)")
	managedFlag := flag.Bool("managed", def.Managed, "Manage the backend docker container")
	modelFlag := flag.String("model", def.Model, "Whisper model alias (tiny, base, small, medium, large-v3, turbo, ...)")
	beamFlag := flag.Int("beam", def.Beam, "Beam size for decoding (1-20)")
	langFlag := flag.String("lang", def.Language, "Language code (e.g., en, es, fr). Empty = auto-detect")
	toggleFlag := flag.String("toggle", def.ToggleKey, "Toggle hotkey combo (e.g., ctrl+shift+space)")
	cancelFlag := flag.String("cancel", def.CancelKey, "Cancel hotkey combo (empty to disable)")
	holdFlag := flag.Duration("hold", def.HoldThreshold, "Hold threshold separating tap-to-toggle from hold-to-talk")
	deviceFlag := flag.String("device", def.Device, "Microphone device name substring (empty = system default)")
	submitFlag := flag.Bool("autosubmit", def.AutoSubmit, "Press Enter after pasting the transcript")
	restoreFlag := flag.Bool("restore-clipboard", def.RestoreClipboard, "Restore the previous clipboard after pasting")
	maxDurFlag := flag.Duration("max-duration", def.MaxDuration, "Hard cap on a single recording")
	saveFlag := flag.String("save-audio", def.SaveAudio, "Directory for FLAC copies of recordings (empty = off)")
	noBeepFlag := flag.Bool("no-beep", def.NoBeep, "Disable audio feedback cues")
	tuiFlag := flag.Bool("tui", def.TUI, "Run with terminal UI in the foreground")
	trayFlag := flag.Bool("tray", def.Tray, "Show the system tray icon")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	logPathFlag := flag.String("logpath", "", "Log directory path (default: OS-specific location, use ./ for current dir)")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060)")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven)")
	flag.Parse()

	cfg := def
	configPath := *configFlag
	explicit := configPath != ""
	if configPath == "" {
		configPath = defaultConfigPath()
	}
	if err := loadConfigFile(&cfg, configPath, explicit); err != nil {
		return nil, err
	}

	// Command-line flags override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server":
			cfg.Server = *serverFlag
		case "managed":
			cfg.Managed = *managedFlag
		case "model":
			cfg.Model = *modelFlag
		case "beam":
			cfg.Beam = *beamFlag
		case "lang":
			cfg.Language = *langFlag
		case "toggle":
			cfg.ToggleKey = *toggleFlag
		case "cancel":
			cfg.CancelKey = *cancelFlag
		case "hold":
			cfg.HoldThreshold = *holdFlag
		case "device":
			cfg.Device = *deviceFlag
		case "autosubmit":
			cfg.AutoSubmit = *submitFlag
		case "restore-clipboard":
			cfg.RestoreClipboard = *restoreFlag
		case "max-duration":
			cfg.MaxDuration = *maxDurFlag
		case "save-audio":
			cfg.SaveAudio = *saveFlag
		case "no-beep":
			cfg.NoBeep = *noBeepFlag
		case "tui":
			cfg.TUI = *tuiFlag
		case "tray":
			cfg.Tray = *trayFlag
		}
	})

	if _, err := hotkey.ParseCombo(cfg.ToggleKey); err != nil {
		return nil, fmt.Errorf("toggle key: %w", err)
	}
	if cfg.CancelKey != "" {
		if _, err := hotkey.ParseCombo(cfg.CancelKey); err != nil {
			return nil, fmt.Errorf("cancel key: %w", err)
		}
	}

	fl := &cliFlags{
		cfg:        cfg,
		configPath: configPath,
		logPath:    *logPathFlag,
		profile:    *profileFlag,
		version:    *versionFlag,
		doctor:     *doctorFlag,
		crash:      *crashFlag,
		test:       *testFlag,
	}
	if fl.test {
		if flag.NArg() == 0 {
			return nil, fmt.Errorf("usage: whisperkey -test <wav-file>")
		}
		fl.testWAV = flag.Arg(0)
	}
	return fl, nil
}
