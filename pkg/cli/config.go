package cli

// Config holds the global flags of the CLI
type Config struct {
	ConfigFile string
	Cwd        string
	Verbosity  string
	Version    string
}

// NewConfig creates a new CLI configuration with defaults
func NewConfig() *Config {
	return &Config{
		Cwd:       ".",
		Verbosity: "info",
	}
}
