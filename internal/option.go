package internal

// Option configures the Run and RunMCP entry points.
type Option func(*application)

type application struct {
	config *Config
}

// WithConfig supplies the loaded configuration. It is required; Run and
// RunMCP fail without one.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}
