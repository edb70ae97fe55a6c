package tools

// ToolConfig centralizes configuration for all tools.
type ToolConfig struct {
	// file_read: maximum content size returned to the model (prevents token overflow)
	MaxContentSize int

	// drive_search
	DriveSearchDefaultLimit int
	DriveSearchMaxLimit     int

	// calendar_lookup
	CalendarDefaultLimit int
	CalendarMaxLimit     int
	CalendarDefaultRange int // days ahead when time_max is omitted

	// Confidence defaults when the model does not supply one
	DefaultEditConfidence   int
	DefaultCreateConfidence int
	DefaultCopyConfidence   int
}

// DefaultToolConfig returns the default tool configuration.
func DefaultToolConfig() *ToolConfig {
	return &ToolConfig{
		MaxContentSize: 20000, // 20k characters (~5k tokens)

		DriveSearchDefaultLimit: 10,
		DriveSearchMaxLimit:     50,

		CalendarDefaultLimit: 10,
		CalendarMaxLimit:     50,
		CalendarDefaultRange: 7,

		DefaultEditConfidence:   70,
		DefaultCreateConfidence: 60,
		DefaultCopyConfidence:   80,
	}
}
