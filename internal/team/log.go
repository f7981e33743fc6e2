package team

import "log/slog"

// logger is a package-level fallback used by components not wired with an
// explicit *slog.Logger, mirroring internal/agent's helper of the same
// name.
func logger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
