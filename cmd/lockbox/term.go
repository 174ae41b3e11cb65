package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/sweeney/lockbox/internal/session"
)

// newOutput colours output only when w is a terminal.
func newOutput(w io.Writer) *termenv.Output {
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return termenv.NewOutput(w)
	}
	return termenv.NewOutput(w, termenv.WithProfile(termenv.Ascii))
}

// ANSI colour indexes.
const (
	colorRed    = "1"
	colorGreen  = "2"
	colorYellow = "3"
	colorBlue   = "4"
)

func stateColor(s session.DeviceState) string {
	switch s {
	case session.StateReady, session.StateCompleted:
		return colorGreen
	case session.StateArmed, session.StateTesting:
		return colorYellow
	case session.StateLocked:
		return colorBlue
	}
	return colorRed
}

func outcomeColor(o session.Outcome) string {
	switch o {
	case session.OutcomeSuccess:
		return colorGreen
	case session.OutcomeAborted:
		return colorRed
	}
	return colorYellow
}

func paint(out *termenv.Output, color, s string) string {
	return out.String(s).Foreground(out.Color(color)).Bold().String()
}
