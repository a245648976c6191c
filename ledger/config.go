package ledger

// Config is a configuration for the card ledger application
type Config struct {
	HTTPAddr    string
	ISO8583Addr string
	// BINPrefix sets the BIN used when provisioning cards without an explicit
	// number (6/8/9 digits).
	BINPrefix string
	// SeedDemoCard provisions the demo card on startup when the ledger holds
	// no cards yet.
	SeedDemoCard bool
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:     "localhost:8080",
		ISO8583Addr:  "localhost:8583",
		BINPrefix:    "453201",
		SeedDemoCard: true,
	}
}
