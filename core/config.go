package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the per-tick, read-only configuration snapshot consumed by
// the Classifier, Executor and Scheduler (spec §3 "Config").
//
// It supports the same three-layer priority the teacher framework uses:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
type Config struct {
	// Scheduling (§4.1)
	TickInterval time.Duration `json:"tick_interval" env:"SUPERVISOR_TICK_INTERVAL" default:"1s"`

	// Budgets (§3, §4.2, §4.5)
	MaxInterventionsPerPositive   int           `json:"max_interventions_per_positive" env:"SUPERVISOR_MAX_INTERVENTIONS" default:"5"`
	MaxConnectionResumeClicks     int           `json:"max_connection_resume_clicks" env:"SUPERVISOR_MAX_RESUME_CLICKS" default:"3"`
	MaxConsecutiveRecoveryFailures int          `json:"max_consecutive_recovery_failures" env:"SUPERVISOR_MAX_RECOVERY_FAILURES" default:"3"`
	StuckTimeout                  time.Duration `json:"stuck_timeout" env:"SUPERVISOR_STUCK_TIMEOUT" default:"60s"`
	ObservationWindow             time.Duration `json:"observation_window" env:"SUPERVISOR_OBSERVATION_WINDOW" default:"3s"`

	// Feature toggles (§3)
	ConnectionRecoveryEnabled     bool `json:"connection_recovery_enabled" env:"SUPERVISOR_ENABLE_CONNECTION_RECOVERY" default:"true"`
	ForceStopRecoveryEnabled      bool `json:"force_stop_recovery_enabled" env:"SUPERVISOR_ENABLE_FORCE_STOP_RECOVERY" default:"true"`
	StuckRecoveryEnabled          bool `json:"stuck_recovery_enabled" env:"SUPERVISOR_ENABLE_STUCK_RECOVERY" default:"true"`
	SidebarMonitoringEnabled      bool `json:"sidebar_monitoring_enabled" env:"SUPERVISOR_ENABLE_SIDEBAR_MONITORING" default:"true"`
	SoundOnIntervention           bool `json:"sound_on_intervention" env:"SUPERVISOR_SOUND_ON_INTERVENTION" default:"false"`
	NotificationOnPersistentError bool `json:"notification_on_persistent_error" env:"SUPERVISOR_NOTIFY_ON_PERSISTENT_ERROR" default:"true"`

	// Nudge text injected by the Stuck recovery sub-protocol (§4.4).
	NudgeText string `json:"nudge_text" env:"SUPERVISOR_NUDGE_TEXT"`

	// Classification vocabularies (§9 "Ambiguity to preserve" — configurable,
	// not hard-coded).
	PositiveKeywords        []string `json:"positive_keywords"`
	ConnectionIssueKeywords []string `json:"connection_issue_keywords"`
	StuckMessageKeywords    []string `json:"stuck_message_keywords"`

	// Sidebar activity fingerprint composition (§4.2 step 7, §9).
	SidebarFingerprintChildren   int      `json:"sidebar_fingerprint_children" default:"5"`
	SidebarFingerprintAttributes []string `json:"sidebar_fingerprint_attributes"`
	SidebarFingerprintDelimiter  string   `json:"sidebar_fingerprint_delimiter" default:"\\x1f"`

	// Target process identification (§4.6).
	BundleIdentifier string `json:"bundle_identifier" env:"SUPERVISOR_BUNDLE_ID"`

	// External collaborator plumbing (§6).
	PreferencesPath string `json:"preferences_path" env:"SUPERVISOR_PREFERENCES_PATH"`

	// Session Log (§4.7).
	SessionLogCapacity int `json:"session_log_capacity" env:"SUPERVISOR_SESSION_LOG_CAPACITY" default:"1000"`

	// Per-AX-call timeout (§5 "Timeouts").
	ActionTimeout time.Duration `json:"action_timeout" env:"SUPERVISOR_ACTION_TIMEOUT" default:"10s"`

	// Ambient stack
	Logging     LoggingConfig     `json:"logging"`
	Telemetry   TelemetryConfig   `json:"telemetry"`
	Development DevelopmentConfig `json:"development"`
}

// LoggingConfig controls the ProductionLogger.
type LoggingConfig struct {
	Level  string `json:"level" env:"SUPERVISOR_LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"SUPERVISOR_LOG_FORMAT"` // "json" or "text"; if empty, "text" in development mode, else "json"
}

// TelemetryConfig controls the optional OTel metrics layer.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled" env:"SUPERVISOR_TELEMETRY_ENABLED" default:"false"`
	ServiceName string `json:"service_name" env:"SUPERVISOR_SERVICE_NAME" default:"codeloop-supervisor"`
}

// DevelopmentConfig toggles developer-facing behavior such as text-format
// logs instead of JSON.
type DevelopmentConfig struct {
	Enabled bool `json:"enabled" env:"SUPERVISOR_DEV_MODE" default:"false"`
}

// DefaultPositiveKeywords is the default "positive activity" vocabulary for
// §4.2 step 6. Case-insensitive substring match.
func DefaultPositiveKeywords() []string {
	return []string{
		"Generating", "Thinking", "Processing", "Working",
		"Analyzing", "Searching", "Reading", "Writing", "Running",
	}
}

// DefaultConnectionIssueKeywords is the default vocabulary for §4.2 step 8.
func DefaultConnectionIssueKeywords() []string {
	return []string{
		"connection lost", "connection error", "disconnected",
		"unable to connect", "network error", "reconnecting",
	}
}

// DefaultStuckMessageKeywords is the default vocabulary for §4.2 step 10.
func DefaultStuckMessageKeywords() []string {
	return []string{
		"something went wrong", "an error occurred", "request failed",
		"please try again", "unexpected error",
	}
}

// DefaultSidebarFingerprintAttributes is the default attribute set read from
// each sidebar child when computing the activity fingerprint (§4.2 step 7).
func DefaultSidebarFingerprintAttributes() []string {
	return []string{"title", "value", "description"}
}

// DefaultConfig returns a Config populated with spec-default values
// (matching the literal values used throughout spec.md §8's scenarios).
func DefaultConfig() *Config {
	return &Config{
		TickInterval:                   1 * time.Second,
		MaxInterventionsPerPositive:    5,
		MaxConnectionResumeClicks:      3,
		MaxConsecutiveRecoveryFailures: 3,
		StuckTimeout:                   60 * time.Second,
		ObservationWindow:              3 * time.Second,

		ConnectionRecoveryEnabled:      true,
		ForceStopRecoveryEnabled:       true,
		StuckRecoveryEnabled:           true,
		SidebarMonitoringEnabled:       true,
		SoundOnIntervention:            false,
		NotificationOnPersistentError:  true,

		NudgeText: "",

		PositiveKeywords:        DefaultPositiveKeywords(),
		ConnectionIssueKeywords: DefaultConnectionIssueKeywords(),
		StuckMessageKeywords:    DefaultStuckMessageKeywords(),

		SidebarFingerprintChildren:   5,
		SidebarFingerprintAttributes: DefaultSidebarFingerprintAttributes(),
		SidebarFingerprintDelimiter:  "\x1f",

		SessionLogCapacity: 1000,
		ActionTimeout:      10 * time.Second,

		Logging:     LoggingConfig{Level: "info"},
		Telemetry:   TelemetryConfig{ServiceName: "codeloop-supervisor"},
		Development: DevelopmentConfig{},
	}
}

// Option mutates a Config during NewConfig. Functional options are the
// highest-priority layer, applied after environment variables.
type Option func(*Config) error

// NewConfig assembles a Config via defaults -> environment -> options.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides reads the environment variables named in the struct tags
// above. Unset variables leave the default untouched.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("SUPERVISOR_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.TickInterval = d
		}
	}
	if v := os.Getenv("SUPERVISOR_MAX_INTERVENTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxInterventionsPerPositive = n
		}
	}
	if v := os.Getenv("SUPERVISOR_MAX_RESUME_CLICKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxConnectionResumeClicks = n
		}
	}
	if v := os.Getenv("SUPERVISOR_MAX_RECOVERY_FAILURES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxConsecutiveRecoveryFailures = n
		}
	}
	if v := os.Getenv("SUPERVISOR_STUCK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.StuckTimeout = d
		}
	}
	if v := os.Getenv("SUPERVISOR_OBSERVATION_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ObservationWindow = d
		}
	}
	if v := os.Getenv("SUPERVISOR_ENABLE_CONNECTION_RECOVERY"); v != "" {
		c.ConnectionRecoveryEnabled = parseBool(v)
	}
	if v := os.Getenv("SUPERVISOR_ENABLE_FORCE_STOP_RECOVERY"); v != "" {
		c.ForceStopRecoveryEnabled = parseBool(v)
	}
	if v := os.Getenv("SUPERVISOR_ENABLE_STUCK_RECOVERY"); v != "" {
		c.StuckRecoveryEnabled = parseBool(v)
	}
	if v := os.Getenv("SUPERVISOR_ENABLE_SIDEBAR_MONITORING"); v != "" {
		c.SidebarMonitoringEnabled = parseBool(v)
	}
	if v := os.Getenv("SUPERVISOR_SOUND_ON_INTERVENTION"); v != "" {
		c.SoundOnIntervention = parseBool(v)
	}
	if v := os.Getenv("SUPERVISOR_NOTIFY_ON_PERSISTENT_ERROR"); v != "" {
		c.NotificationOnPersistentError = parseBool(v)
	}
	if v := os.Getenv("SUPERVISOR_NUDGE_TEXT"); v != "" {
		c.NudgeText = v
	}
	if v := os.Getenv("SUPERVISOR_BUNDLE_ID"); v != "" {
		c.BundleIdentifier = v
	}
	if v := os.Getenv("SUPERVISOR_PREFERENCES_PATH"); v != "" {
		c.PreferencesPath = v
	}
	if v := os.Getenv("SUPERVISOR_SESSION_LOG_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SessionLogCapacity = n
		}
	}
	if v := os.Getenv("SUPERVISOR_ACTION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ActionTimeout = d
		}
	}
	if v := os.Getenv("SUPERVISOR_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SUPERVISOR_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("SUPERVISOR_DEV_MODE"); v != "" {
		c.Development.Enabled = parseBool(v)
	}
	if v := os.Getenv("SUPERVISOR_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("SUPERVISOR_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	}
}

// parseBool converts a string to a boolean value.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
// Everything else is false.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Validate checks the Config against the invariants and ranges spec.md §4.1
// and §3 impose.
func (c *Config) Validate() error {
	if c.TickInterval < 500*time.Millisecond || c.TickInterval > 5*time.Second {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("tick interval must be between 500ms and 5s, got %v", c.TickInterval),
			Err:     ErrInvalidConfiguration,
		}
	}
	if c.MaxInterventionsPerPositive < 1 {
		return &FrameworkError{Op: "Config.Validate", Kind: "config", Message: "max interventions per positive must be >= 1", Err: ErrInvalidConfiguration}
	}
	if c.MaxConnectionResumeClicks < 1 {
		return &FrameworkError{Op: "Config.Validate", Kind: "config", Message: "max connection resume clicks must be >= 1", Err: ErrInvalidConfiguration}
	}
	if c.MaxConsecutiveRecoveryFailures < 1 {
		return &FrameworkError{Op: "Config.Validate", Kind: "config", Message: "max consecutive recovery failures must be >= 1", Err: ErrInvalidConfiguration}
	}
	if c.StuckTimeout <= 0 {
		return &FrameworkError{Op: "Config.Validate", Kind: "config", Message: "stuck timeout must be positive", Err: ErrInvalidConfiguration}
	}
	if c.ObservationWindow <= 0 {
		return &FrameworkError{Op: "Config.Validate", Kind: "config", Message: "observation window must be positive", Err: ErrInvalidConfiguration}
	}
	if c.SessionLogCapacity < 1 {
		return &FrameworkError{Op: "Config.Validate", Kind: "config", Message: "session log capacity must be >= 1", Err: ErrInvalidConfiguration}
	}
	if len(c.PositiveKeywords) == 0 {
		return &FrameworkError{Op: "Config.Validate", Kind: "config", Message: "positive keywords must not be empty", Err: ErrMissingConfiguration}
	}
	return nil
}

// Functional options ---------------------------------------------------

// WithTickInterval sets the scheduler's tick interval (Validate rejects a
// value outside [0.5s, 5s]).
func WithTickInterval(d time.Duration) Option {
	return func(c *Config) error { c.TickInterval = d; return nil }
}

// WithMaxInterventionsPerPositive sets the intervention budget (§4.2 step 5).
func WithMaxInterventionsPerPositive(n int) Option {
	return func(c *Config) error { c.MaxInterventionsPerPositive = n; return nil }
}

// WithMaxConnectionResumeClicks sets the connection-retry budget (§4.2 step 8).
func WithMaxConnectionResumeClicks(n int) Option {
	return func(c *Config) error { c.MaxConnectionResumeClicks = n; return nil }
}

// WithMaxConsecutiveRecoveryFailures sets the persistent-failure threshold (§4.5).
func WithMaxConsecutiveRecoveryFailures(n int) Option {
	return func(c *Config) error { c.MaxConsecutiveRecoveryFailures = n; return nil }
}

// WithStuckTimeout sets the inactivity threshold for the Stuck decision (§4.2 step 11).
func WithStuckTimeout(d time.Duration) Option {
	return func(c *Config) error { c.StuckTimeout = d; return nil }
}

// WithObservationWindow sets the post-intervention observation window (§4.5).
func WithObservationWindow(d time.Duration) Option {
	return func(c *Config) error { c.ObservationWindow = d; return nil }
}

// WithFeatureToggles flips the six boolean feature toggles in one call.
func WithFeatureToggles(connection, forceStop, stuck, sidebar, sound, notify bool) Option {
	return func(c *Config) error {
		c.ConnectionRecoveryEnabled = connection
		c.ForceStopRecoveryEnabled = forceStop
		c.StuckRecoveryEnabled = stuck
		c.SidebarMonitoringEnabled = sidebar
		c.SoundOnIntervention = sound
		c.NotificationOnPersistentError = notify
		return nil
	}
}

// WithNudgeText sets the text injected by the Stuck recovery sub-protocol.
func WithNudgeText(text string) Option {
	return func(c *Config) error { c.NudgeText = text; return nil }
}

// WithPositiveKeywords overrides the positive-activity vocabulary (§9).
func WithPositiveKeywords(keywords []string) Option {
	return func(c *Config) error { c.PositiveKeywords = keywords; return nil }
}

// WithSidebarFingerprint overrides the sidebar fingerprint composition (§9).
func WithSidebarFingerprint(children int, attributes []string, delimiter string) Option {
	return func(c *Config) error {
		c.SidebarFingerprintChildren = children
		c.SidebarFingerprintAttributes = attributes
		c.SidebarFingerprintDelimiter = delimiter
		return nil
	}
}

// WithBundleIdentifier sets the target process bundle identifier (§4.6).
func WithBundleIdentifier(id string) Option {
	return func(c *Config) error { c.BundleIdentifier = id; return nil }
}

// WithPreferencesPath points the Preferences store at a file on disk.
func WithPreferencesPath(path string) Option {
	return func(c *Config) error { c.PreferencesPath = path; return nil }
}

// WithSessionLogCapacity sets the session log ring buffer capacity (§4.7).
func WithSessionLogCapacity(n int) Option {
	return func(c *Config) error { c.SessionLogCapacity = n; return nil }
}

// WithActionTimeout sets the per-AX-call timeout (§5).
func WithActionTimeout(d time.Duration) Option {
	return func(c *Config) error { c.ActionTimeout = d; return nil }
}

// WithLogLevel sets the minimum log level ("debug", "info", "warn", "error").
func WithLogLevel(level string) Option {
	return func(c *Config) error { c.Logging.Level = level; return nil }
}

// WithLogFormat sets the log output format ("json" or "text").
func WithLogFormat(format string) Option {
	return func(c *Config) error { c.Logging.Format = format; return nil }
}

// WithDevelopmentMode enables dev-mode defaults (text logs, verbose debug).
func WithDevelopmentMode(enabled bool) Option {
	return func(c *Config) error {
		c.Development.Enabled = enabled
		if enabled && c.Logging.Format == "" {
			c.Logging.Format = "text"
		}
		return nil
	}
}

// WithTelemetry enables the OTel metrics layer under the given service name.
func WithTelemetry(enabled bool, serviceName string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		if serviceName != "" {
			c.Telemetry.ServiceName = serviceName
		}
		return nil
	}
}
