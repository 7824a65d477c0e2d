// Package tray renders the status icon and menu. Recording state drives
// the icon; the menu switches models and languages and exposes the last
// transcript.
package tray

import (
	"sync"

	"fyne.io/systray"
)

type Language struct {
	Code  string // ISO-639-1, "" = auto-detect
	Label string
}

// Languages the linuxserver faster-whisper image handles well.
var Languages = []Language{
	{"", "Auto-detect"},
	{"zh", "Chinese"},
	{"cs", "Czech"},
	{"da", "Danish"},
	{"nl", "Dutch"},
	{"en", "English"},
	{"fi", "Finnish"},
	{"fr", "French"},
	{"de", "German"},
	{"el", "Greek"},
	{"hi", "Hindi"},
	{"hu", "Hungarian"},
	{"id", "Indonesian"},
	{"it", "Italian"},
	{"ja", "Japanese"},
	{"ko", "Korean"},
	{"no", "Norwegian"},
	{"pl", "Polish"},
	{"pt", "Portuguese"},
	{"ro", "Romanian"},
	{"ru", "Russian"},
	{"es", "Spanish"},
	{"sv", "Swedish"},
	{"th", "Thai"},
	{"tr", "Turkish"},
	{"uk", "Ukrainian"},
	{"vi", "Vietnamese"},
}

// Callbacks are invoked from the tray's own goroutines.
type Callbacks struct {
	OnToggle   func()
	OnCancel   func()
	OnCopyLast func()
	OnModel    func(alias string)
	OnLanguage func(code string)
	OnQuit     func()
}

// Options configure the initial menu contents.
type Options struct {
	Models         []string // aliases in display order
	ActiveModel    string
	ActiveLanguage string
	Tooltip        string
}

var (
	mu        sync.Mutex
	mToggle   *systray.MenuItem
	mCancel   *systray.MenuItem
	mCopy     *systray.MenuItem
	mBackend  *systray.MenuItem
	modelItem map[string]*systray.MenuItem
	langItem  map[string]*systray.MenuItem
	tooltip   string
)

// Run blocks until Quit; call it from the main goroutine. Everything else
// in this package is safe to call from any goroutine once Run has invoked
// the systray ready hook.
func Run(opts Options, cb Callbacks) {
	tooltip = opts.Tooltip
	if tooltip == "" {
		tooltip = "whisperkey"
	}
	systray.Run(func() { onReady(opts, cb) }, func() {
		if cb.OnQuit != nil {
			cb.OnQuit()
		}
	})
}

func Quit() {
	systray.Quit()
}

func onReady(opts Options, cb Callbacks) {
	systray.SetIcon(iconIdle)
	systray.SetTooltip(tooltip)

	mToggle = systray.AddMenuItem("Start Recording", "Toggle recording")
	mCancel = systray.AddMenuItem("Cancel Recording", "Discard the active recording")
	mCancel.Disable()
	mCopy = systray.AddMenuItem("Copy Last Transcript", "Copy the last transcript again")
	mCopy.Disable()

	systray.AddSeparator()

	mModels := systray.AddMenuItem("Model", "Switch transcription model")
	modelItem = make(map[string]*systray.MenuItem, len(opts.Models))
	for _, alias := range opts.Models {
		item := mModels.AddSubMenuItemCheckbox(alias, "Switch to "+alias, alias == opts.ActiveModel)
		modelItem[alias] = item
		go clickLoop(item, alias, cb.OnModel)
	}

	mLangs := systray.AddMenuItem("Language", "Transcription language")
	langItem = make(map[string]*systray.MenuItem, len(Languages))
	for _, lang := range Languages {
		item := mLangs.AddSubMenuItemCheckbox(lang.Label, "", lang.Code == opts.ActiveLanguage)
		langItem[lang.Code] = item
		go clickLoop(item, lang.Code, cb.OnLanguage)
	}

	systray.AddSeparator()
	mBackend = systray.AddMenuItem("Backend: unknown", "")
	mBackend.Disable()

	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "")

	go func() {
		for {
			select {
			case <-mToggle.ClickedCh:
				if cb.OnToggle != nil {
					cb.OnToggle()
				}
			case <-mCancel.ClickedCh:
				if cb.OnCancel != nil {
					cb.OnCancel()
				}
			case <-mCopy.ClickedCh:
				if cb.OnCopyLast != nil {
					cb.OnCopyLast()
				}
			case <-mQuit.ClickedCh:
				systray.Quit()
				return
			}
		}
	}()
}

func clickLoop(item *systray.MenuItem, value string, fn func(string)) {
	for range item.ClickedCh {
		if fn != nil {
			fn(value)
		}
	}
}

// SetState updates the icon and menu for an orchestrator state name.
func SetState(state string) {
	mu.Lock()
	defer mu.Unlock()
	if mToggle == nil {
		return
	}
	switch state {
	case "recording":
		systray.SetIcon(iconRecording)
		mToggle.SetTitle("Stop Recording")
		mCancel.Enable()
	case "processing":
		systray.SetIcon(iconBusy)
		mToggle.SetTitle("Start Recording")
		mToggle.Disable()
		mCancel.Disable()
	case "model_loading":
		systray.SetIcon(iconLoading)
		mToggle.Disable()
		mCancel.Disable()
	default:
		systray.SetIcon(iconIdle)
		mToggle.SetTitle("Start Recording")
		mToggle.Enable()
		mCancel.Disable()
	}
}

// SetActiveModel moves the checkmark after a successful model change.
func SetActiveModel(alias string) {
	mu.Lock()
	defer mu.Unlock()
	for a, item := range modelItem {
		if a == alias {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
}

// SetActiveLanguage moves the language checkmark.
func SetActiveLanguage(code string) {
	mu.Lock()
	defer mu.Unlock()
	for c, item := range langItem {
		if c == code {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
}

// SetBackendStatus reflects the container state in the menu.
func SetBackendStatus(status string) {
	mu.Lock()
	defer mu.Unlock()
	if mBackend != nil {
		mBackend.SetTitle("Backend: " + status)
	}
}

// SetLastTranscript enables the copy item once there is something to copy.
func SetLastTranscript(text string) {
	mu.Lock()
	defer mu.Unlock()
	if mCopy == nil || text == "" {
		return
	}
	mCopy.Enable()
	preview := text
	if len(preview) > 40 {
		preview = preview[:40] + "…"
	}
	mCopy.SetTitle("Copy Last Transcript (" + preview + ")")
}
