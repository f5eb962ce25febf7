package spreadsheet

import "log/slog"

// Config configures the parser.
type Config struct {
	// MaxFileSize bounds ParseFile inputs (default: 10 MB). Uploads are
	// bounded earlier by the ingester.
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// Logger for detection diagnostics and error-cell warnings.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 10 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
