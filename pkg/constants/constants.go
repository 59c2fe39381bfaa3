// Package constants provides shared constants for the split-payment-forecast application.
package constants

// DateTimeLayout is the format expected for simulation window dates and is also
// the output date format.
const DateTimeLayout = "2006-01"

// Calendar constants
const (
	// MonthsPerYear is the number of months in a year
	MonthsPerYear = 12

	// DaysPerMonth is the commercial month used by every cycle and working-capital formula
	DaysPerMonth = 30

	// MonthlyDeferralDays is the credit deferral for the monthly compensation policy
	MonthlyDeferralDays = 30

	// QuarterlyDeferralDays is the credit deferral for the quarterly compensation policy
	QuarterlyDeferralDays = 90
)

// Financial constants
const (
	// DecimalPlaces is the number of decimal places used for currency rounding
	DecimalPlaces = 2

	// CurrencyTolerance is the tolerance for currency comparisons (1 cent)
	CurrencyTolerance = 0.01

	// PercentageMultiplier is used for percentage conversions
	PercentageMultiplier = 100.0

	// MaxEffectivenessPercent caps the effectiveness of any mitigation combination
	MaxEffectivenessPercent = 100.0
)

// Calculation defaults
const (
	// DefaultEffectiveRate is the combined reference rate of the reformed consumption taxes
	DefaultEffectiveRate = 0.265

	// DefaultMonthlyDiscountRate discounts deferred credit benefits to present value
	DefaultMonthlyDiscountRate = 0.01

	// DefaultFallbackRetention is used for years missing from a phase-in schedule
	DefaultFallbackRetention = 0.10

	// DefaultSensitivityDelta is the relative perturbation applied by the sensitivity analysis
	DefaultSensitivityDelta = 0.10

	// DefaultSensitivityCap is reported when the baseline impact is zero but the perturbed one is not
	DefaultSensitivityCap = 1e6

	// DefaultInteractionFactor applies to lever pairs without an explicit coefficient
	DefaultInteractionFactor = 0.9
)

// Growth scenario annual rates
const (
	GrowthConservative = 0.02
	GrowthModerate     = 0.05
	GrowthOptimistic   = 0.08
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatJSON is the JSON output format
	OutputFormatJSON = "json"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// EnvPrefix prefixes every environment override read by viper
	EnvPrefix = "SPF"
)

// Persistence defaults
const (
	// DefaultStateKey is the well-known key holding the serialized state envelope
	DefaultStateKey = "splitPaymentSimulator.state"

	// DefaultHistoryCapacity bounds the undo/redo snapshot ring
	DefaultHistoryCapacity = 50

	// StateEnvelopeVersion is written into every saved envelope
	StateEnvelopeVersion = 1

	// BackendMemory, BackendFile and BackendSQLite name the key-value backends
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"

	// DefaultFileStoreDir is used by the file backend when no path is configured
	DefaultFileStoreDir = ".split-payment"

	// DefaultSQLitePath is used by the sqlite backend when no path is configured
	DefaultSQLitePath = "split-payment.db"
)
