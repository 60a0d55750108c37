package config

import "github.com/shopspring/decimal"

// Overrides are values given on the command line. Zero values leave the
// loaded configuration untouched.
type Overrides struct {
	Addr         string
	LogLevel     string
	NoColor      bool
	StateFile    string
	TokenSupply  string
	EthLiquidity string
	Seed         string
}

// Apply layers o over cfg and re-validates it.
func (c *Config) Apply(o Overrides) error {
	if o.Addr != "" {
		c.Addr = o.Addr
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.NoColor {
		c.LogColor = false
	}
	if o.StateFile != "" {
		c.StateFile = o.StateFile
	}

	var err error
	if c.TokenSupply, err = flagDecimal(o.TokenSupply, c.TokenSupply, "--token-supply"); err != nil {
		return err
	}
	if c.EthLiquidity, err = flagDecimal(o.EthLiquidity, c.EthLiquidity, "--eth-liquidity"); err != nil {
		return err
	}
	if o.Seed != "" {
		if c.Seed, err = ParseSeed(o.Seed); err != nil {
			return err
		}
	}

	return c.Validate()
}

func flagDecimal(raw string, fallback decimal.Decimal, name string) (decimal.Decimal, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &flagError{name: name, value: raw, err: err}
	}
	return d, nil
}

type flagError struct {
	name  string
	value string
	err   error
}

func (e *flagError) Error() string {
	return "invalid " + e.name + " provided, " + e.name + "=" + e.value + ": " + e.err.Error()
}

func (e *flagError) Unwrap() error { return e.err }
