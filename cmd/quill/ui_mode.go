package main

import (
	"fmt"
	"os"
	"strings"
)

// uiMode selects whether build progress is drawn with the terminal UI.
type uiMode string

const (
	uiModeAuto uiMode = "auto"
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
)

func parseUIMode(value string) (uiMode, error) {
	switch m := uiMode(strings.ToLower(strings.TrimSpace(value))); m {
	case "":
		return uiModeAuto, nil
	case uiModeAuto, uiModeOn, uiModeOff:
		return m, nil
	default:
		return "", fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
	}
}

// enabled resolves auto against out and the environment: the UI needs a
// real terminal and stays off in CI logs.
func (m uiMode) enabled(out *os.File, getenv func(string) string) bool {
	switch m {
	case uiModeOn:
		return true
	case uiModeOff:
		return false
	}
	if getenv("CI") != "" || getenv("TERM") == "dumb" {
		return false
	}
	return isTerminal(out)
}
