package delivery

import (
	"runtime"
	"sync"

	cb "github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

type systemClipboard struct{}

func (systemClipboard) Read() (string, error)   { return cb.ReadAll() }
func (systemClipboard) Write(text string) error { return cb.WriteAll(text) }

// systemKeys drives keybd_event lazily, so construction never fails even
// when uinput is unavailable until the first keystroke.
type systemKeys struct {
	once sync.Once
	kb   keybd_event.KeyBonding
	err  error
}

func newSystemKeys() *systemKeys {
	return &systemKeys{}
}

func (s *systemKeys) init() error {
	s.once.Do(func() {
		s.kb, s.err = keybd_event.NewKeyBonding()
	})
	return s.err
}

func (s *systemKeys) Paste() error {
	if err := s.init(); err != nil {
		return err
	}
	s.kb.Clear()
	s.kb.SetKeys(keybd_event.VK_V)
	if runtime.GOOS == "darwin" {
		s.kb.HasSuper(true) // Cmd+V
	} else {
		s.kb.HasCTRL(true)
	}
	return s.kb.Launching()
}

func (s *systemKeys) Enter() error {
	if err := s.init(); err != nil {
		return err
	}
	s.kb.Clear()
	s.kb.SetKeys(keybd_event.VK_ENTER)
	return s.kb.Launching()
}
