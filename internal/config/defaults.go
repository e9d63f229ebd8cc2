package config

// DefaultAshigaruCount is the default ashigaru pool size, spec section 6.
const DefaultAshigaruCount = 5

// DefaultServerPort is the default HTTP/WS listen port.
const DefaultServerPort = 8787

// DefaultProvider names the provider used when none is configured. It
// identifies which Provider implementation cmd/shogund wires up; it is not
// interpreted by this package.
const DefaultProvider = "default"

// defaultConfig returns a Config pre-populated with built-in defaults, to
// be layered under whatever the user's YAML sets via mergo.
func defaultConfig(configDir string) *Config {
	return &Config{
		configDir:     configDir,
		BaseDir:       ".shogun",
		HistoryDir:    ".shogun/history",
		AshigaruCount: DefaultAshigaruCount,
		Provider:      DefaultProvider,
		Server:        ServerConfig{Port: DefaultServerPort},
	}
}
