package project

import "log/slog"

// Option is a functional option for configuring a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for project-level events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}
