package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/invoice-billing-converter/internal/config"
	"github.com/ginjaninja78/invoice-billing-converter/internal/store"
	"github.com/ginjaninja78/invoice-billing-converter/internal/types"
	"github.com/ginjaninja78/invoice-billing-converter/internal/validation"
	"github.com/ginjaninja78/invoice-billing-converter/pkg/utils"
)

// =============================================================================
// FAKES
// =============================================================================

type memStore struct {
	mu        sync.Mutex
	agencies  map[string]bool
	clients   map[string]string
	invoices  map[string]*store.Invoice
	eligible  map[string][]string
	artifacts []store.Artifact
	locks     map[string]bool
	upsertErr error
}

func newMemStore() *memStore {
	return &memStore{
		agencies: map[string]bool{},
		clients:  map[string]string{},
		invoices: map[string]*store.Invoice{},
		eligible: map[string][]string{},
		locks:    map[string]bool{},
	}
}

func (m *memStore) EnsureAgency(_ context.Context, name, country string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agencies[name+"|"+country] = true
	return name + "|" + country, nil
}

func (m *memStore) EnsureClient(_ context.Context, name, country string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := name + "|" + country
	if id, ok := m.clients[key]; ok {
		return id, nil
	}
	id := fmt.Sprintf("client-%d", len(m.clients)+1)
	m.clients[key] = id
	return id, nil
}

func (m *memStore) UpsertInvoice(_ context.Context, inv *store.Invoice) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return false, m.upsertErr
	}
	key := inv.InvoiceNumber + "|" + inv.Country
	prev, exists := m.invoices[key]
	cp := *inv
	if exists {
		cp.AssignedInvoiceNumber = prev.AssignedInvoiceNumber
	}
	m.invoices[key] = &cp
	return !exists, nil
}

func (m *memStore) EligibleAgencies(_ context.Context, country string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eligible[country], nil
}

func (m *memStore) AssignLedgerDocument(_ context.Context, number, country, docID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[number+"|"+country]
	if !ok {
		return false, nil
	}
	inv.AssignedInvoiceNumber = docID
	return true, nil
}

func (m *memStore) RecordArtifact(_ context.Context, a store.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts = append(m.artifacts, a)
	return nil
}

func (m *memStore) Lock(_ context.Context, key string) (func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return nil, fmt.Errorf("%w: %s", types.ErrPeriodLocked, key)
	}
	m.locks[key] = true
	return func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.locks, key)
		return nil
	}, nil
}

type memArtifacts struct {
	files map[string][]byte
}

func (a *memArtifacts) Put(_ context.Context, name string, data []byte) (string, error) {
	if a.files == nil {
		a.files = map[string][]byte{}
	}
	a.files[name] = data
	return "mem://" + name, nil
}

// =============================================================================
// FIXTURES
// =============================================================================

var summaryHeader = []any{
	"Invoice #", "Invoice Date", "Agency", "Client", "Channel",
	"Order Reference", "Gross Invoice ", "Net Invoice", "Currency", "Spot Count",
}

func workbook(t *testing.T, sheet string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if sheet != "Sheet1" {
		require.NoError(t, f.SetSheetName("Sheet1", sheet))
	}
	for i, r := range rows {
		if r == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := r
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func summary(t *testing.T, data ...[]any) []byte {
	rows := [][]any{{"Invoice Summary"}, nil, nil, nil, nil, summaryHeader}
	return workbook(t, "Invoice Summary", append(rows, data...))
}

func ledgerWorkbook(t *testing.T, data ...[]any) []byte {
	rows := [][]any{{"Comprobante", "Cliente", "Observaciones", "Importe Bruto", "Fecha"}}
	return workbook(t, "Sheet1", append(rows, data...))
}

var scenarioRow = []any{"100.0", "2025-03-10", "AgencyA", "ClientB", "Ch", "Ref", 1000, 826.45, "ARS", 12}

func fixedClock() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }

func newTestConverter(t *testing.T, st InvoiceStore, art ArtifactStore, mutate ...func(*config.MainConfig)) *Converter {
	t.Helper()
	cfg := config.Default()
	for _, fn := range mutate {
		fn(cfg)
	}
	c, err := New(Options{
		Config:    cfg,
		Store:     st,
		Artifacts: art,
		Logger:    zerolog.Nop(),
		Now:       fixedClock,
	})
	require.NoError(t, err)
	return c
}

func openOutput(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func cell(t *testing.T, f *excelize.File, ref string) string {
	t.Helper()
	v, err := f.GetCellValue("Sheet1", ref)
	require.NoError(t, err)
	return v
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNewFillsUnsetConfiguration(t *testing.T) {
	cfg := &config.MainConfig{}
	c, err := New(Options{Config: cfg, Logger: zerolog.Nop(), Now: fixedClock})
	require.NoError(t, err)
	assert.Nil(t, cfg.Summary.HeaderRow, "the caller's config is left alone")

	res, err := c.RunBilling(context.Background(), BillingInput{
		Filename: "Invoice_Summary_marzo.xlsx",
		Data:     summary(t, scenarioRow),
		Year:     2025,
		DryRun:   true,
	})
	require.NoError(t, err)

	out := openOutput(t, res.Workbook)
	assert.Equal(t, "1000", cell(t, out, "Q3"))
	assert.Equal(t, "210", cell(t, out, "R3"))
}

func TestNewRejectsInvalidConfiguration(t *testing.T) {
	_, err := New(Options{Config: &config.MainConfig{Document: config.DocumentSettings{TaxRate: "21%"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tax_rate")

	negative := -1
	_, err = New(Options{Config: &config.MainConfig{Summary: config.SummarySettings{HeaderRow: &negative}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header_row")
}

// =============================================================================
// BILLING
// =============================================================================

func TestRunBillingScenario(t *testing.T) {
	st := newMemStore()
	art := &memArtifacts{}
	c := newTestConverter(t, st, art)

	res, err := c.RunBilling(context.Background(), BillingInput{
		Filename: "Invoice_Summary_marzo.xlsx",
		Data:     summary(t, scenarioRow),
		Year:     2025,
	})
	require.NoError(t, err)

	assert.Equal(t, types.KindBilling, res.Kind)
	assert.Equal(t, "ar", res.Jurisdiction)
	assert.Equal(t, 2025, res.Period.Year)
	assert.Equal(t, 3, res.Period.Month)
	assert.False(t, res.MonthFromClock)
	assert.Equal(t, 1, res.RowsRead)
	assert.Equal(t, 1, res.Pairs)
	assert.Equal(t, 1, res.InvoicesCreated)
	assert.Equal(t, 0, res.InvoicesUpdated)
	assert.Equal(t, "Facturacion_Marzo_AR.xlsx", res.ArtifactName)
	assert.Equal(t, "mem://Facturacion_Marzo_AR.xlsx", res.ArtifactPath)
	assert.NotEmpty(t, res.RunID)

	out := openOutput(t, art.files["Facturacion_Marzo_AR.xlsx"])
	assert.Equal(t, "NUMERODECONTROL", cell(t, out, "A1"))
	assert.Equal(t, "1", cell(t, out, "A2"))
	assert.Equal(t, "AgencyA", cell(t, out, "B2"))
	assert.Equal(t, "1", cell(t, out, "C2"))
	assert.Equal(t, "2025-03-31", cell(t, out, "E2"))
	assert.Equal(t, "2025-04-30", cell(t, out, "F2"))
	assert.Equal(t, "Certificacion 100.0 / Ch / ClientB / Ref", cell(t, out, "J2"))
	assert.Equal(t, "1", cell(t, out, "A3"))
	assert.Equal(t, "", cell(t, out, "B3"))
	assert.Equal(t, "1000", cell(t, out, "Q3"))
	assert.Equal(t, "210", cell(t, out, "R3"))
	assert.Equal(t, "", cell(t, out, "P3"))

	inv := st.invoices["100|ar"]
	require.NotNil(t, inv)
	assert.True(t, inv.GrossValue.Decimal.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "2025-03", inv.ExhibitionMonth)
	assert.Equal(t, "2025-03-31", inv.InvoiceDate.Format("2006-01-02"))
	assert.Equal(t, "AgencyA", inv.Agency)
	require.NotNil(t, inv.SpotCount)
	assert.Equal(t, int64(12), *inv.SpotCount)
	assert.True(t, st.agencies["AgencyA|ar"])

	require.Len(t, st.artifacts, 1)
	assert.Equal(t, "billing", st.artifacts[0].FileType)
	assert.Empty(t, st.locks, "lock released")
}

func TestRunBillingTwiceUpdates(t *testing.T) {
	st := newMemStore()
	art := &memArtifacts{}
	c := newTestConverter(t, st, art)
	in := BillingInput{Filename: "resumen_marzo.xlsx", Data: summary(t, scenarioRow), Year: 2025}

	_, err := c.RunBilling(context.Background(), in)
	require.NoError(t, err)
	res, err := c.RunBilling(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, 0, res.InvoicesCreated)
	assert.Equal(t, 1, res.InvoicesUpdated)
	assert.Len(t, st.invoices, 1)
	assert.Len(t, art.files, 1)
}

func TestRunBillingValidationStopsBeforeWrites(t *testing.T) {
	st := newMemStore()
	art := &memArtifacts{}
	c := newTestConverter(t, st, art)

	_, err := c.RunBilling(context.Background(), BillingInput{
		Filename: "resumen_marzo.xlsx",
		Data: summary(t,
			scenarioRow,
			[]any{"101", "2025-03-10", "AgencyA", "ClientB", "Ch", "Ref", "n/a", 1, "ARS"},
		),
	})
	require.Error(t, err)

	var ve *validation.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, 2, ve.RowNumber)
	assert.Equal(t, types.ColGross, ve.Field)

	assert.Empty(t, st.invoices)
	assert.Empty(t, st.agencies)
	assert.Empty(t, art.files)
}

func TestRunBillingInputErrors(t *testing.T) {
	c := newTestConverter(t, newMemStore(), &memArtifacts{})

	_, err := c.RunBilling(context.Background(), BillingInput{
		Filename: "marzo.xlsx",
		Data:     workbook(t, "Other", [][]any{{"x"}}),
	})
	assert.ErrorIs(t, err, types.ErrMissingSheet)

	_, err = c.RunBilling(context.Background(), BillingInput{
		Filename: "marzo.xlsx",
		Data:     summary(t),
	})
	assert.ErrorIs(t, err, types.ErrEmptyInput)
}

func TestRunBillingMonthResolution(t *testing.T) {
	t.Run("clock fallback", func(t *testing.T) {
		c := newTestConverter(t, nil, nil)
		res, err := c.RunBilling(context.Background(), BillingInput{
			Filename: "summary.xlsx", Data: summary(t, scenarioRow), DryRun: true,
		})
		require.NoError(t, err)
		assert.True(t, res.MonthFromClock)
		assert.Equal(t, 6, res.Period.Month)
		assert.Equal(t, 2025, res.Period.Year)
		assert.Equal(t, "Facturacion_Junio_AR.xlsx", res.ArtifactName)
	})

	t.Run("strict", func(t *testing.T) {
		c := newTestConverter(t, nil, nil, func(cfg *config.MainConfig) { cfg.StrictMonth = true })
		_, err := c.RunBilling(context.Background(), BillingInput{
			Filename: "summary.xlsx", Data: summary(t, scenarioRow), DryRun: true,
		})
		assert.ErrorIs(t, err, types.ErrMonthNotFound)
	})

	t.Run("explicit month wins", func(t *testing.T) {
		c := newTestConverter(t, nil, nil)
		res, err := c.RunBilling(context.Background(), BillingInput{
			Filename: "resumen_marzo.xlsx", Data: summary(t, scenarioRow), Month: 12, Year: 2024, DryRun: true,
		})
		require.NoError(t, err)
		assert.False(t, res.MonthFromClock)
		assert.Equal(t, 12, res.Period.Month)

		out := openOutput(t, res.Workbook)
		assert.Equal(t, "2024-12-31", cell(t, out, "E2"))
		assert.Equal(t, "2025-01-31", cell(t, out, "F2"))
	})
}

func TestRunBillingDryRunWritesNothing(t *testing.T) {
	st := newMemStore()
	art := &memArtifacts{}
	c := newTestConverter(t, st, art)

	res, err := c.RunBilling(context.Background(), BillingInput{
		Filename: "resumen_marzo.xlsx", Data: summary(t, scenarioRow), DryRun: true,
	})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.NotEmpty(t, res.Workbook)
	assert.Empty(t, res.ArtifactPath)
	assert.Equal(t, 1, res.Pairs)

	assert.Empty(t, st.invoices)
	assert.Empty(t, st.artifacts)
	assert.Empty(t, art.files)
}

func TestRunBillingRequiresStores(t *testing.T) {
	c := newTestConverter(t, nil, nil)
	_, err := c.RunBilling(context.Background(), BillingInput{
		Filename: "resumen_marzo.xlsx", Data: summary(t, scenarioRow),
	})
	assert.Error(t, err)
}

func TestRunBillingLockedPeriod(t *testing.T) {
	st := newMemStore()
	st.locks["2025-03/ar"] = true
	c := newTestConverter(t, st, &memArtifacts{})

	_, err := c.RunBilling(context.Background(), BillingInput{
		Filename: "resumen_marzo.xlsx", Data: summary(t, scenarioRow), Year: 2025,
	})
	assert.ErrorIs(t, err, types.ErrPeriodLocked)
	assert.Empty(t, st.invoices)
}

func TestRunBillingStoreFailure(t *testing.T) {
	st := newMemStore()
	st.upsertErr = errors.New("connection reset")
	c := newTestConverter(t, st, &memArtifacts{})

	_, err := c.RunBilling(context.Background(), BillingInput{
		Filename: "resumen_marzo.xlsx", Data: summary(t, scenarioRow), Year: 2025,
	})
	require.Error(t, err)

	var ext *types.ExternalIOError
	require.True(t, errors.As(err, &ext))
	assert.Equal(t, "upsert invoice", ext.Op)
	assert.Empty(t, st.locks, "lock released on failure")
}

func TestRunBillingAppliesTransformations(t *testing.T) {
	st := newMemStore()
	c := newTestConverter(t, st, &memArtifacts{}, func(cfg *config.MainConfig) {
		cfg.TransformationRules = []config.TransformationRule{{
			Field: types.ColCurrency,
			Actions: []config.TransformationAction{{
				Type: "lookup", LookupTable: map[string]string{"Pesos": "ARS"},
			}},
		}}
	})

	row := append([]any(nil), scenarioRow...)
	row[8] = "Pesos"
	res, err := c.RunBilling(context.Background(), BillingInput{
		Filename: "resumen_marzo.xlsx", Data: summary(t, row), Year: 2025,
	})
	require.NoError(t, err)
	assert.Equal(t, "ar", res.Jurisdiction)
}

// =============================================================================
// CREDIT NOTES
// =============================================================================

func seededStore(t *testing.T) (*memStore, *memArtifacts, *Converter) {
	t.Helper()
	st := newMemStore()
	art := &memArtifacts{}
	c := newTestConverter(t, st, art)
	_, err := c.RunBilling(context.Background(), BillingInput{
		Filename: "resumen_marzo.xlsx", Data: summary(t, scenarioRow), Year: 2025,
	})
	require.NoError(t, err)
	return st, art, c
}

func TestRunCreditNotesScenario(t *testing.T) {
	st, art, c := seededStore(t)
	st.eligible["ar"] = []string{"AgencyA"}

	res, err := c.RunCreditNotes(context.Background(), CreditNoteInput{
		Filename:       "resumen_marzo.xlsx",
		Data:           summary(t, scenarioRow),
		LedgerFilename: "ledger.xlsx",
		LedgerData:     ledgerWorkbook(t, []any{"FC-1", "AgencyA", "Certificacion 100 / Ch / ClientB / Ref", 1000, "2025-03-31"}),
		Year:           2025,
	})
	require.NoError(t, err)

	assert.Equal(t, types.KindCreditNote, res.Kind)
	assert.Equal(t, 1, res.Pairs)
	assert.Equal(t, 1, res.LedgerEntries)
	assert.Equal(t, 1, res.InvoicesAssigned)
	assert.Equal(t, "NotasCredito_Marzo_AR.xlsx", res.ArtifactName)

	out := openOutput(t, art.files["NotasCredito_Marzo_AR.xlsx"])
	assert.Equal(t, "1", cell(t, out, "A2"))
	assert.Equal(t, "3", cell(t, out, "C2"))
	assert.Equal(t, "FC-1", cell(t, out, "G2"))
	assert.Equal(t, "1", cell(t, out, "I2"))
	assert.Equal(t, "0", cell(t, out, "P3"))

	assert.Equal(t, "FC-1", st.invoices["100|ar"].AssignedInvoiceNumber)
	require.Len(t, st.artifacts, 2)
	assert.Equal(t, "credit_notes", st.artifacts[1].FileType)
}

func TestRunCreditNotesCSVLedger(t *testing.T) {
	st, art, c := seededStore(t)
	st.eligible["ar"] = []string{"AgencyA"}

	csv := "Comprobante;Cliente;Observaciones\nFC-7;AgencyA;Certificacion 100 / x\n"
	c.cfg.Ledger.Delimiter = ";"

	res, err := c.RunCreditNotes(context.Background(), CreditNoteInput{
		Filename:       "resumen_marzo.xlsx",
		Data:           summary(t, scenarioRow),
		LedgerFilename: "ledger.CSV",
		LedgerData:     []byte(csv),
		Year:           2025,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pairs)
	assert.Contains(t, art.files, "NotasCredito_Marzo_AR.xlsx")
	assert.Equal(t, "FC-7", st.invoices["100|ar"].AssignedInvoiceNumber)
}

func TestRunCreditNotesRejections(t *testing.T) {
	ledger := ledgerWorkbook(t, []any{"FC-1", "AgencyA", "Certificacion 100", 1000, "2025-03-31"})

	t.Run("jurisdiction", func(t *testing.T) {
		st := newMemStore()
		st.eligible["mx"] = []string{"AgencyA"}
		c := newTestConverter(t, st, &memArtifacts{})

		row := append([]any(nil), scenarioRow...)
		row[8] = "MXN"
		_, err := c.RunCreditNotes(context.Background(), CreditNoteInput{
			Filename: "resumen_marzo.xlsx", Data: summary(t, row),
			LedgerFilename: "ledger.xlsx", LedgerData: ledger,
		})
		assert.ErrorIs(t, err, types.ErrJurisdictionNotSupported)
	})

	t.Run("no eligible agencies", func(t *testing.T) {
		c := newTestConverter(t, newMemStore(), &memArtifacts{})
		_, err := c.RunCreditNotes(context.Background(), CreditNoteInput{
			Filename: "resumen_marzo.xlsx", Data: summary(t, scenarioRow),
			LedgerFilename: "ledger.xlsx", LedgerData: ledger,
		})
		assert.ErrorIs(t, err, types.ErrNoEligibleRecords)
	})

	t.Run("no ledger match", func(t *testing.T) {
		st := newMemStore()
		st.eligible["ar"] = []string{"AgencyA"}
		art := &memArtifacts{}
		c := newTestConverter(t, st, art)
		_, err := c.RunCreditNotes(context.Background(), CreditNoteInput{
			Filename: "resumen_marzo.xlsx", Data: summary(t, scenarioRow),
			LedgerFilename: "ledger.xlsx",
			LedgerData:     ledgerWorkbook(t, []any{"FC-2", "AgencyA", "Certificacion 999", 1, "2025-03-31"}),
		})
		assert.ErrorIs(t, err, types.ErrNoEligibleRecords)
		assert.Empty(t, art.files)
		assert.Empty(t, st.locks)
	})

	t.Run("empty ledger", func(t *testing.T) {
		st := newMemStore()
		st.eligible["ar"] = []string{"AgencyA"}
		c := newTestConverter(t, st, &memArtifacts{})
		_, err := c.RunCreditNotes(context.Background(), CreditNoteInput{
			Filename: "resumen_marzo.xlsx", Data: summary(t, scenarioRow),
			LedgerFilename: "ledger.xlsx", LedgerData: ledgerWorkbook(t),
		})
		assert.ErrorIs(t, err, types.ErrEmptyInput)
	})
}

func TestRunCreditNotesDryRunWithExplicitEligibility(t *testing.T) {
	c := newTestConverter(t, nil, nil)
	res, err := c.RunCreditNotes(context.Background(), CreditNoteInput{
		Filename:       "resumen_marzo.xlsx",
		Data:           summary(t, scenarioRow),
		LedgerFilename: "ledger.xlsx",
		LedgerData:     ledgerWorkbook(t, []any{"FC-1", "AgencyA", "Certificacion 100", 1000, "2025-03-31"}),
		Eligible:       []string{"AgencyA"},
		DryRun:         true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pairs)
	assert.Equal(t, 0, res.InvoicesAssigned)
	assert.NotEmpty(t, res.Workbook)
}

// =============================================================================
// SQLITE + FILE MANAGER
// =============================================================================

func TestPipelineWithSQLiteAndFileManager(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	st, err := store.OpenSQLite(ctx, filepath.Join(root, "invoices.db"), zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()

	fm := utils.NewFileManager(filepath.Join(root, "in"), filepath.Join(root, "out"), filepath.Join(root, "archive"))
	require.NoError(t, fm.EnsureDirectories())

	c := newTestConverter(t, st, fm)

	res, err := c.RunBilling(ctx, BillingInput{
		Filename: "resumen_marzo.xlsx", Data: summary(t, scenarioRow), Year: 2025,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fm.OutputDir, "Facturacion_Marzo_AR.xlsx"), res.ArtifactPath)
	assert.True(t, utils.FileExists(res.ArtifactPath))

	require.NoError(t, st.SetCreditNoteEligibility(ctx, "AgencyA", "ar", true))

	res, err = c.RunCreditNotes(ctx, CreditNoteInput{
		Filename:       "resumen_marzo.xlsx",
		Data:           summary(t, scenarioRow),
		LedgerFilename: "ledger.xlsx",
		LedgerData:     ledgerWorkbook(t, []any{"FC-1", "AgencyA", "Certificacion 100 / Ch / ClientB / Ref", 1000, "2025-03-31"}),
		Year:           2025,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.InvoicesAssigned)

	inv, err := st.GetInvoice(ctx, "100", "ar")
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, "FC-1", inv.AssignedInvoiceNumber)

	data, err := os.ReadFile(res.ArtifactPath)
	require.NoError(t, err)
	out := openOutput(t, data)
	assert.Equal(t, "FC-1", cell(t, out, "G2"))
}
