package app

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"codeberg.org/sigterm-de/scriptbox/internal/engine/js"
	"codeberg.org/sigterm-de/scriptbox/internal/harness"
)

// Preferences holds persistent user-configurable settings. Command-line
// flags override them for a single invocation.
type Preferences struct {
	// DefaultEngine runs scripts whose engine cannot be told from a header
	// or file extension, and is the REPL's starting engine.
	DefaultEngine string `json:"default_engine"`

	PollIntervalMS int `json:"poll_interval_ms"`
	StopGraceMS    int `json:"stop_grace_ms"`
	MaxConcurrent  int `json:"max_concurrent"`

	// TimeoutMS stops a run after this long; 0 disables the timeout.
	TimeoutMS int `json:"timeout_ms"`

	// Context is the ctx value used when neither -ctx nor @ctx gives one.
	Context string `json:"context"`

	// JSRequireMain rejects JavaScript without a top-level main function.
	JSRequireMain bool `json:"js_require_main"`
	// JSStrict compiles JavaScript in strict mode.
	JSStrict bool `json:"js_strict"`
}

func defaultPreferences() Preferences {
	return Preferences{
		DefaultEngine:  "js",
		PollIntervalMS: int(harness.DefaultPollInterval / time.Millisecond),
		StopGraceMS:    int(harness.DefaultStopGrace / time.Millisecond),
		MaxConcurrent:  4,
		TimeoutMS:      0,
		Context:        "",
	}
}

// LoadPreferences loads preferences from path, returning defaults on any error.
func LoadPreferences(path string) Preferences {
	data, err := os.ReadFile(path)
	if err != nil {
		return defaultPreferences()
	}
	prefs := defaultPreferences()
	if err := json.Unmarshal(data, &prefs); err != nil {
		return defaultPreferences()
	}
	sanitizePreferences(&prefs)
	return prefs
}

// sanitizePreferences replaces values a hand-edited file could get wrong
// with their defaults.
func sanitizePreferences(p *Preferences) {
	def := defaultPreferences()
	if p.DefaultEngine == "" {
		p.DefaultEngine = def.DefaultEngine
	}
	if p.PollIntervalMS <= 0 {
		p.PollIntervalMS = def.PollIntervalMS
	}
	if p.StopGraceMS <= 0 {
		p.StopGraceMS = def.StopGraceMS
	}
	if p.MaxConcurrent < 0 {
		p.MaxConcurrent = def.MaxConcurrent
	}
	if p.TimeoutMS < 0 {
		p.TimeoutMS = 0
	}
}

// SavePreferences writes preferences to path.
func SavePreferences(path string, prefs Preferences) error {
	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("preferences: marshal: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("preferences: write: %w", err)
	}
	return nil
}

// HarnessConfig returns the supervisor settings for engine e.
func (p Preferences) HarnessConfig(e harness.Engine) harness.Config {
	return harness.Config{
		Engine:        e,
		PollInterval:  time.Duration(p.PollIntervalMS) * time.Millisecond,
		StopGrace:     time.Duration(p.StopGraceMS) * time.Millisecond,
		MaxConcurrent: p.MaxConcurrent,
	}
}

// JSOptions returns the JavaScript engine settings.
func (p Preferences) JSOptions() js.Options {
	return js.Options{RequireMain: p.JSRequireMain, Strict: p.JSStrict}
}

// Timeout is TimeoutMS as a duration.
func (p Preferences) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}
