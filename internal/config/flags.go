package config

import "flag"

// CLIFlags holds command-line overrides. Nil pointers mean the flag was
// not provided and the lower-precedence value stays in effect.
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
}

// ParseFlags parses command-line arguments into CLIFlags.
// Long and short forms are supported: --config/-c, --port/-p.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("quill", flag.ContinueOnError)

	configPath := fs.String("config", "", "path to YAML config file")
	fs.StringVar(configPath, "c", "", "path to YAML config file (shorthand)")
	port := fs.String("port", "", "HTTP listen port")
	fs.StringVar(port, "p", "", "HTTP listen port (shorthand)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	dsn := fs.String("dsn", "", "PostgreSQL connection string")
	natsURL := fs.String("nats-url", "", "NATS server URL")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, err
	}

	var flags CLIFlags
	if *configPath != "" {
		flags.ConfigPath = configPath
	}
	if *port != "" {
		flags.Port = port
	}
	if *logLevel != "" {
		flags.LogLevel = logLevel
	}
	if *dsn != "" {
		flags.DSN = dsn
	}
	if *natsURL != "" {
		flags.NatsURL = natsURL
	}
	return flags, nil
}

// applyCLI overlays non-nil CLI flags onto cfg. CLI has the highest precedence.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DSN != nil {
		cfg.Postgres.DSN = *flags.DSN
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
}
