// Package detector inspects the terminal environment to pick an output mode.
package detector

import (
	"os"

	"github.com/muesli/termenv"
	"go.trai.ch/bake/internal/ui/output"
	"golang.org/x/term"
)

// OutputMode selects how build progress is presented.
type OutputMode int

const (
	// ModeAuto picks ModeLinear.
	ModeAuto OutputMode = iota
	// ModeLinear prints prefixed task output as it arrives.
	ModeLinear
	// ModeEvents prints the build event stream as JSON lines.
	ModeEvents
	// ModeQuiet prints only failures.
	ModeQuiet
)

// Environment describes the terminal the process writes to.
type Environment struct {
	IsTTY bool
	IsCI  bool
}

// DetectEnvironment reports whether stdout is a terminal and whether CI variables are set.
func DetectEnvironment() Environment {
	ci := os.Getenv("CI")
	return Environment{
		IsTTY: term.IsTerminal(int(os.Stdout.Fd())),
		IsCI:  ci == "true" || ci == "1",
	}
}

// ColorProfile picks the detected profile for interactive terminals, ANSI for CI logs and no color otherwise.
func (e Environment) ColorProfile() termenv.Profile {
	switch {
	case e.IsTTY && !e.IsCI:
		return output.ColorProfile()
	case e.IsCI:
		return output.ColorProfileANSI()
	default:
		return termenv.Ascii
	}
}

// ResolveMode applies the user's --output flag. Unknown values fall back to ModeLinear.
func ResolveMode(userFlag string) OutputMode {
	switch userFlag {
	case "events", "json":
		return ModeEvents
	case "quiet":
		return ModeQuiet
	default:
		return ModeLinear
	}
}
