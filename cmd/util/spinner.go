package util

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/theckman/yacspin"
)

const spinnerFrequency = 100 * time.Millisecond

// Spinner shows the current step of a long command. It only draws on a
// terminal; elsewhere steps are logged at debug level.
type Spinner struct {
	spin *yacspin.Spinner
}

func NewSpinner(w io.Writer) (*Spinner, error) {
	f, ok := w.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return &Spinner{}, nil
	}
	spin, err := yacspin.New(yacspin.Config{
		Frequency:         spinnerFrequency,
		CharSet:           yacspin.CharSets[14],
		Writer:            w,
		Suffix:            " ",
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		return nil, err
	}
	return &Spinner{spin: spin}, nil
}

// Step completes the current step, if any, and starts the next one.
func (s *Spinner) Step(msg string) {
	if s.spin == nil {
		log.Debug().Msg(msg)
		return
	}
	if s.spin.Status() == yacspin.SpinnerRunning {
		_ = s.spin.Stop()
	}
	s.spin.Message(msg)
	_ = s.spin.Start()
}

// Done marks the current step as finished or failed.
func (s *Spinner) Done(err error) {
	if s.spin == nil || s.spin.Status() != yacspin.SpinnerRunning {
		return
	}
	if err != nil {
		_ = s.spin.StopFail()
		return
	}
	_ = s.spin.Stop()
}
