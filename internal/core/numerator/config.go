// Package numerator provides domain contracts for document auto-numbering.
package numerator

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict reserves every number with UPSERT ... RETURNING.
	// Sequential without gaps; used for invoices and adjustments.
	StrategyStrict Strategy = iota

	// StrategyCached reserves ranges and hands them out from memory.
	// May leave gaps after a restart; acceptable for orders and shipments.
	StrategyCached
)

// ParseStrategy maps a config value to a Strategy. Unknown values fall back to strict.
func ParseStrategy(s string) Strategy {
	if s == "cached" {
		return StrategyCached
	}
	return StrategyStrict
}

// Options configuration for number generation.
type Options struct {
	Strategy Strategy
	// RangeSize is the number of values reserved at once by the cached strategy (default 50).
	RangeSize int64
}

// DefaultOptions returns standard options (Strict).
func DefaultOptions() *Options {
	return &Options{
		Strategy: StrategyStrict,
	}
}

// Config holds numbering configuration for one sequence.
type Config struct {
	// Prefix is the transaction type code (e.g. "SO", "ARI").
	Prefix string

	// IncludeYear adds year to the number
	IncludeYear bool

	// PadWidth is the minimum number width (default 5)
	PadWidth int

	// ResetPeriod: "year", "month", "never"
	ResetPeriod string
}

// DefaultConfig returns the sequence layout used for a transaction type.
func DefaultConfig(transactionTypeCode string) Config {
	return Config{
		Prefix:      transactionTypeCode,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	}
}
