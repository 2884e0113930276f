// =============================================================================
// Invoice Billing Converter - Configuration Module
// =============================================================================
//
// This module is responsible for loading and managing the application
// configuration.
//
// CONFIGURATION SOURCES (later sources win):
//   1. Built-in defaults (applyMainConfigDefaults)
//   2. Main Config (config.yaml): directories, sheet layout, document labels,
//      store and SMTP settings, field transformation rules
//   3. A .env file in the working directory, if present
//   4. Process environment variables (secrets: DSN, SMTP credentials)
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is where summary and ledger workbooks are picked up from when
	// a command is given a bare file name.
	// Default: "./input"
	InputDir string `yaml:"input_dir"`

	// OutputDir is where generated workbooks are stored. An artifact with the
	// same name as a previous one replaces it.
	// Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// InputArchiveDir receives processed inputs when ArchiveInputs is set, and
	// certification PDFs once they have been mailed.
	// Default: "./input_archive"
	InputArchiveDir string `yaml:"input_archive_dir"`

	// CertificationsDir is scanned by send-certifications for PDF files.
	// Default: "./certifications"
	CertificationsDir string `yaml:"certifications_dir"`

	// ArchiveInputs moves the summary workbook to InputArchiveDir after a
	// successful non-dry run.
	ArchiveInputs bool `yaml:"archive_inputs"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// =========================================================================
	// INPUT LAYOUT
	// =========================================================================

	Summary SummarySettings `yaml:"summary"`
	Ledger  LedgerSettings  `yaml:"ledger"`

	// =========================================================================
	// OUTPUT DOCUMENT
	// =========================================================================

	Document DocumentSettings `yaml:"document"`

	// CreditNoteJurisdictions lists the jurisdiction codes for which credit
	// notes may be generated.
	// Default: ["ar"]
	CreditNoteJurisdictions []string `yaml:"credit_note_jurisdictions"`

	// StrictMonth turns a filename without a month name into an error instead
	// of falling back to the current month.
	StrictMonth bool `yaml:"strict_month"`

	// TransformationRules are applied to summary fields before validation.
	TransformationRules []TransformationRule `yaml:"transformation_rules"`

	// =========================================================================
	// EXTERNAL SERVICES
	// =========================================================================

	Store StoreConfig `yaml:"store"`
	SMTP  SMTPConfig  `yaml:"smtp"`
}

// SummarySettings describes where the data lives in the invoice summary workbook.
type SummarySettings struct {
	// SheetName is the sheet holding the summary.
	// Default: "Invoice Summary"
	SheetName string `yaml:"sheet_name"`

	// HeaderRow is the 0-based row index of the header row. Data starts on
	// the following row.
	// Default: 5 (header on the 6th row)
	HeaderRow *int `yaml:"header_row"`

	// StatusColumn is checked for the TOTAL marker that ends the data block.
	// Default: "Invoice Date"
	StatusColumn string `yaml:"status_column"`
}

// LedgerSettings describes CSV ledger exports. Workbook exports need no settings.
type LedgerSettings struct {
	// Delimiter is the CSV field separator.
	// Default: ","
	Delimiter string `yaml:"delimiter"`

	// Encoding of CSV exports: "UTF-8", "ISO-8859-1" or "Windows-1252".
	// Default: "UTF-8"
	Encoding string `yaml:"encoding"`
}

// DocumentSettings holds the fixed labels written into every output row.
type DocumentSettings struct {
	NumberTemplate  string `yaml:"number_template"`
	CurrencyLabel   string `yaml:"currency_label"`
	ServiceLabel    string `yaml:"service_label"`
	CostCenterLabel string `yaml:"cost_center_label"`

	// TaxRate is applied to the gross amount of each detail row.
	// Default: "0.21"
	TaxRate string `yaml:"tax_rate"`
}

// Rate returns the parsed tax rate. Validate rejects a rate that does not parse.
func (d DocumentSettings) Rate() decimal.Decimal {
	r, err := decimal.NewFromString(d.TaxRate)
	if err != nil {
		return decimal.Zero
	}
	return r
}

// StoreConfig selects the invoice store backend.
type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// DSN is a file path for sqlite or a connection URL for postgres.
	// Default: "./data/invoices.db"
	DSN string `yaml:"dsn"`
}

// SMTPConfig holds the mail relay settings used by send-certifications.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`

	// ImplicitTLS dials TLS directly (port 465) instead of plain SMTP with STARTTLS.
	ImplicitTLS bool `yaml:"implicit_tls"`

	// DefaultRecipients are copied on every certification email.
	DefaultRecipients []string `yaml:"default_recipients"`

	// ErrorRecipients receive notifications about clients without addresses.
	ErrorRecipients []string `yaml:"error_recipients"`
}

// =============================================================================
// TRANSFORMATION RULE STRUCTURE
// =============================================================================

// TransformationRule defines a transformation to apply to a specific column.
type TransformationRule struct {
	// Field is the column header, as it appears after trimming.
	Field string `yaml:"field"`

	// Actions are applied in order.
	Actions []TransformationAction `yaml:"actions"`
}

// TransformationAction defines a single transformation action.
type TransformationAction struct {
	// Type is one of:
	//   - "trim"                 : Remove leading and trailing whitespace
	//   - "uppercase"            : Convert to uppercase
	//   - "lowercase"            : Convert to lowercase
	//   - "collapse_whitespace"  : Replace runs of whitespace with one space
	//   - "prepend_string"       : Add Value to the beginning
	//   - "append_string"        : Add Value to the end
	//   - "replace"              : Replace Find with Value
	//   - "regex_replace"        : Replace regexp Find with Value
	//   - "extract_digits"       : Keep only the digits
	//   - "lookup"               : Replace using LookupTable (unmatched values kept)
	//   - "default_if_empty"     : Use Value when the field is blank
	//   - "default_from_field"   : Copy the column named by Value when blank
	Type string `yaml:"type"`

	Value string `yaml:"value"`

	Find string `yaml:"find,omitempty"`

	// LookupTable is used for "lookup" transformations.
	// Example:
	//   lookup_table:
	//     "ARS": "ars"
	//     "Peso": "ars"
	LookupTable map[string]string `yaml:"lookup_table,omitempty"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// LoadMainConfig loads the main configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the main configuration file.
//   - required:   When false a missing file yields the defaults.
//
// RETURNS:
//   - A pointer to the MainConfig struct.
//   - An error if the file cannot be read or parsed, or fails validation.
func LoadMainConfig(configPath string, required bool) (*MainConfig, error) {
	var config MainConfig

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// .env is optional; values already exported in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	applyMainConfigDefaults(&config)
	if err := applyEnvOverrides(&config); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := validateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with every default applied and no file read.
func Default() *MainConfig {
	var config MainConfig
	applyMainConfigDefaults(&config)
	return &config
}

// ApplyDefaults fills every unset option of a configuration built in code.
func ApplyDefaults(config *MainConfig) {
	applyMainConfigDefaults(config)
}

// applyMainConfigDefaults sets default values for any unset configuration options.
func applyMainConfigDefaults(config *MainConfig) {
	if config.InputDir == "" {
		config.InputDir = "./input"
	}
	if config.OutputDir == "" {
		config.OutputDir = "./output"
	}
	if config.InputArchiveDir == "" {
		config.InputArchiveDir = "./input_archive"
	}
	if config.CertificationsDir == "" {
		config.CertificationsDir = "./certifications"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	if config.Summary.SheetName == "" {
		config.Summary.SheetName = "Invoice Summary"
	}
	if config.Summary.HeaderRow == nil {
		row := 5
		config.Summary.HeaderRow = &row
	}
	if config.Summary.StatusColumn == "" {
		config.Summary.StatusColumn = "Invoice Date"
	}

	if config.Ledger.Delimiter == "" {
		config.Ledger.Delimiter = ","
	}
	if config.Ledger.Encoding == "" {
		config.Ledger.Encoding = "UTF-8"
	}

	if config.Document.NumberTemplate == "" {
		config.Document.NumberTemplate = "A-00002-00000000"
	}
	if config.Document.CurrencyLabel == "" {
		config.Document.CurrencyLabel = "Pesos Argentinos"
	}
	if config.Document.ServiceLabel == "" {
		config.Document.ServiceLabel = "Servicio Publicidad"
	}
	if config.Document.CostCenterLabel == "" {
		config.Document.CostCenterLabel = "NBCU ON AIR"
	}
	if config.Document.TaxRate == "" {
		config.Document.TaxRate = "0.21"
	}

	if len(config.CreditNoteJurisdictions) == 0 {
		config.CreditNoteJurisdictions = []string{"ar"}
	}

	if config.Store.Driver == "" {
		config.Store.Driver = "sqlite"
	}
	if config.Store.DSN == "" {
		config.Store.DSN = "./data/invoices.db"
	}

	if config.SMTP.Port == 0 {
		config.SMTP.Port = 587
	}
}

// applyEnvOverrides copies secrets and deployment settings from the environment.
func applyEnvOverrides(config *MainConfig) error {
	if v := os.Getenv("CONVERTER_STORE_DRIVER"); v != "" {
		config.Store.Driver = v
	}
	if v := os.Getenv("CONVERTER_STORE_DSN"); v != "" {
		config.Store.DSN = v
	} else if v := os.Getenv("DATABASE_URL"); v != "" && config.Store.Driver == "postgres" {
		config.Store.DSN = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		config.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMTP_PORT %q is not a number", v)
		}
		config.SMTP.Port = port
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		config.SMTP.User = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		config.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		config.SMTP.From = v
	}
	if v := os.Getenv("SMTP_DEFAULT_RECIPIENTS"); v != "" {
		config.SMTP.DefaultRecipients = splitList(v)
	}
	if v := os.Getenv("SMTP_ERROR_RECIPIENTS"); v != "" {
		config.SMTP.ErrorRecipients = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// validateMainConfig validates the main configuration and creates the
// working directories.
func validateMainConfig(config *MainConfig) error {
	if err := Validate(config); err != nil {
		return err
	}

	dirs := []string{
		config.InputDir,
		config.OutputDir,
		config.InputArchiveDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Validate checks a configuration that has had its defaults applied. It
// touches nothing on disk.
func Validate(config *MainConfig) error {
	switch config.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown store driver %q", config.Store.Driver)
	}

	if config.Summary.HeaderRow == nil {
		return fmt.Errorf("summary.header_row is not set")
	}
	if *config.Summary.HeaderRow < 0 {
		return fmt.Errorf("summary.header_row must not be negative")
	}

	if _, err := decimal.NewFromString(config.Document.TaxRate); err != nil {
		return fmt.Errorf("document.tax_rate %q is not a number", config.Document.TaxRate)
	}

	switch strings.ToUpper(config.Ledger.Encoding) {
	case "UTF-8", "UTF8", "ISO-8859-1", "LATIN1", "WINDOWS-1252", "CP1252":
	default:
		return fmt.Errorf("unsupported ledger encoding %q", config.Ledger.Encoding)
	}

	for i, rule := range config.TransformationRules {
		if rule.Field == "" {
			return fmt.Errorf("transformation_rules[%d]: field is required", i)
		}
	}

	return nil
}
