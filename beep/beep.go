// Package beep plays short audible cues for recording transitions.
package beep

var disabled bool

func Disable() { disabled = true }

const (
	sampleRate = 44100

	// Recording started: high pitch, short
	startFreq   = 1150
	startVolume = 0.5
	startDecay  = 60

	// Recording stopped, transcription underway: medium pitch
	stopFreq   = 850
	stopVolume = 0.5
	stopDecay  = 40

	// Recording cancelled: low pitch double-beep
	cancelFreq   = 330
	cancelVolume = 0.6
	cancelDecay  = 30
)

// Player adapts the package to the orchestrator's feedback interface.
type Player struct{}

func (Player) PlayStart()  { PlayStart() }
func (Player) PlayStop()   { PlayStop() }
func (Player) PlayCancel() { PlayCancel() }
