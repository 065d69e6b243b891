package application

import "log/slog"

const (
	LogModule = "records-access/consent-service"
)

func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
