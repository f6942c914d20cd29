package lsp

import (
	"context"
	"encoding/json"
	"time"

	"quill/internal/logging"
)

type lspSettings struct {
	Quill quillSettings `json:"quill"`
}

type quillSettings struct {
	DebounceMs        *int   `json:"debounceMs,omitempty"`
	LogLevel          string `json:"logLevel,omitempty"`
	DiagnosticFilters []any  `json:"diagnosticFilters,omitempty"`
}

func (s *Server) handleDidChangeConfiguration(_ context.Context, params didChangeConfigurationParams) {
	if s.applySettings(params.Settings) {
		s.scheduleSync()
	}
}

// applySettings reports whether the diagnostic filters changed.
func (s *Server) applySettings(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var settings lspSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		s.logger.Warn("lsp: ignoring malformed settings", "err", err)
		return false
	}
	q := settings.Quill
	if q.DebounceMs != nil {
		d := time.Duration(*q.DebounceMs) * time.Millisecond
		if *q.DebounceMs <= 0 {
			d = -1
		}
		s.registry.SetRouteDebounce(d)
	}
	if q.LogLevel != "" && s.opts.LevelVar != nil {
		s.opts.LevelVar.Set(logging.ParseLevel(q.LogLevel))
	}
	if q.DiagnosticFilters == nil {
		return false
	}
	s.registry.SetExtraFilters(q.DiagnosticFilters)
	return true
}
