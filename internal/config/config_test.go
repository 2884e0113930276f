package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withWorkdir runs the test inside an empty directory so the default
// directories and .env lookups stay out of the repository.
func withWorkdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
	for _, k := range []string{
		"CONVERTER_STORE_DRIVER", "CONVERTER_STORE_DSN", "DATABASE_URL",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASSWORD", "SMTP_FROM",
		"SMTP_DEFAULT_RECIPIENTS", "SMTP_ERROR_RECIPIENTS",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadMainConfig_MissingOptionalFileUsesDefaults(t *testing.T) {
	dir := withWorkdir(t)

	cfg, err := LoadMainConfig(filepath.Join(dir, "config.yaml"), false)
	require.NoError(t, err)

	assert.Equal(t, "./output", cfg.OutputDir)
	assert.Equal(t, "Invoice Summary", cfg.Summary.SheetName)
	assert.Equal(t, 5, *cfg.Summary.HeaderRow)
	assert.Equal(t, "Invoice Date", cfg.Summary.StatusColumn)
	assert.Equal(t, ",", cfg.Ledger.Delimiter)
	assert.Equal(t, "0.21", cfg.Document.Rate().String())
	assert.Equal(t, []string{"ar"}, cfg.CreditNoteJurisdictions)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 587, cfg.SMTP.Port)

	assert.DirExists(t, filepath.Join(dir, "output"))
	assert.DirExists(t, filepath.Join(dir, "input"))
}

func TestLoadMainConfig_MissingRequiredFile(t *testing.T) {
	dir := withWorkdir(t)

	_, err := LoadMainConfig(filepath.Join(dir, "missing.yaml"), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadMainConfig_FileValues(t *testing.T) {
	dir := withWorkdir(t)
	path := writeConfig(t, dir, `
output_dir: ./artifacts
summary:
  sheet_name: Resumen
  header_row: 0
ledger:
  delimiter: ";"
  encoding: ISO-8859-1
document:
  tax_rate: "0.105"
credit_note_jurisdictions: [ar, cl]
transformation_rules:
  - field: Agency
    actions:
      - type: trim
`)

	cfg, err := LoadMainConfig(path, true)
	require.NoError(t, err)

	assert.Equal(t, "./artifacts", cfg.OutputDir)
	assert.Equal(t, "Resumen", cfg.Summary.SheetName)
	assert.Equal(t, 0, *cfg.Summary.HeaderRow, "an explicit zero header row is kept")
	assert.Equal(t, ";", cfg.Ledger.Delimiter)
	assert.Equal(t, "0.105", cfg.Document.Rate().String())
	assert.Equal(t, []string{"ar", "cl"}, cfg.CreditNoteJurisdictions)
	require.Len(t, cfg.TransformationRules, 1)
	assert.Equal(t, "trim", cfg.TransformationRules[0].Actions[0].Type)
}

func TestLoadMainConfig_EnvironmentOverrides(t *testing.T) {
	dir := withWorkdir(t)
	t.Setenv("CONVERTER_STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://billing@db/invoices")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("SMTP_DEFAULT_RECIPIENTS", "a@example.com, b@example.com,")

	cfg, err := LoadMainConfig(filepath.Join(dir, "config.yaml"), false)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://billing@db/invoices", cfg.Store.DSN)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.SMTP.DefaultRecipients)
}

func TestLoadMainConfig_DotEnv(t *testing.T) {
	dir := withWorkdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SMTP_USER=billing@example.com\n"), 0644))
	t.Setenv("SMTP_USER", "")
	os.Unsetenv("SMTP_USER")

	cfg, err := LoadMainConfig(filepath.Join(dir, "config.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, "billing@example.com", cfg.SMTP.User)
}

func TestLoadMainConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
		want string
	}{
		{
			name: "unknown driver",
			yaml: "store:\n  driver: mysql\n",
			want: `unknown store driver "mysql"`,
		},
		{
			name: "negative header row",
			yaml: "summary:\n  header_row: -1\n",
			want: "header_row must not be negative",
		},
		{
			name: "tax rate",
			yaml: "document:\n  tax_rate: abc\n",
			want: "tax_rate",
		},
		{
			name: "encoding",
			yaml: "ledger:\n  encoding: EBCDIC\n",
			want: "unsupported ledger encoding",
		},
		{
			name: "rule without field",
			yaml: "transformation_rules:\n  - actions:\n      - type: trim\n",
			want: "transformation_rules[0]: field is required",
		},
		{
			name: "smtp port",
			env:  map[string]string{"SMTP_PORT": "smtp"},
			want: "SMTP_PORT",
		},
		{
			name: "malformed yaml",
			yaml: "store: [\n",
			want: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := withWorkdir(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeConfig(t, dir, tt.yaml)

			_, err := LoadMainConfig(path, true)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "A-00002-00000000", cfg.Document.NumberTemplate)
	assert.Equal(t, "Pesos Argentinos", cfg.Document.CurrencyLabel)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	row := 0
	cfg := &MainConfig{
		Summary:  SummarySettings{HeaderRow: &row},
		Document: DocumentSettings{TaxRate: "0.105"},
	}
	ApplyDefaults(cfg)

	assert.Equal(t, 0, *cfg.Summary.HeaderRow)
	assert.Equal(t, "0.105", cfg.Document.Rate().String())
	assert.Equal(t, "Invoice Summary", cfg.Summary.SheetName)
	require.NoError(t, Validate(cfg))
}

func TestValidateRejectsUndefaultedConfig(t *testing.T) {
	err := Validate(&MainConfig{Store: StoreConfig{Driver: "sqlite"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header_row is not set")
}
