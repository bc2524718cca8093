package termservice

import "log/slog"

// Option is a functional option for configuring a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithNotifier sets the receiver of change events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithStagingDir sets where uploaded files wait for the next save.
func WithStagingDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.staging = dir
		}
	}
}
