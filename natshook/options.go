package natshook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithEvents restricts the extension to publish only the listed event
// names. By default every event is published. Unknown names are silently
// ignored.
func WithEvents(events ...string) Option {
	return func(h *Extension) {
		h.enabled = make(map[string]bool, len(events))
		for _, e := range events {
			h.enabled[e] = true
		}
	}
}

// WithSubjectPrefix replaces DefaultSubjectPrefix.
func WithSubjectPrefix(prefix string) Option {
	return func(h *Extension) {
		if prefix != "" {
			h.prefix = prefix
		}
	}
}

// WithLogger sets the logger used to report publish failures on shutdown.
func WithLogger(l *slog.Logger) Option {
	return func(h *Extension) { h.logger = l }
}
