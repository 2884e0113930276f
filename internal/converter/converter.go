// =============================================================================
// Invoice Billing Converter - Converter Module
// =============================================================================
//
// This module contains the core conversion logic. It orchestrates the entire
// pipeline for one invoice summary, from workbook bytes to the stored artifact.
//
// BILLING PIPELINE:
//   1. Read the invoice summary sheet
//   2. Apply transformation rules to each field
//   3. Validate every record (fail-fast, before any write)
//   4. Resolve the reporting period and the jurisdiction
//   5. Lock the (period, jurisdiction) key
//   6. Upsert agencies, clients and invoices
//   7. Generate row pairs and serialize the workbook
//   8. Store the artifact and record it
//
// CREDIT-NOTE PIPELINE:
//   Steps 1-4 as above, then:
//   5. Read the ledger export (.xlsx or .csv) and build the reconciliation map
//   6. Load the eligible agencies for the jurisdiction
//   7. Lock, generate pairs, record the ledger document of every matched invoice
//   8. Serialize, store and record the artifact
//
// DRY RUN:
//   Everything up to and including serialization. No lock, no store writes,
//   no artifact. Eligible agencies are still read from the store unless the
//   caller supplies them.
//
// CONCURRENCY:
//   A run is a single sequential batch. Runs for the same period and
//   jurisdiction are serialized through the store's lock.
//
// =============================================================================

package converter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ginjaninja78/invoice-billing-converter/internal/canonical"
	"github.com/ginjaninja78/invoice-billing-converter/internal/config"
	"github.com/ginjaninja78/invoice-billing-converter/internal/csvparser"
	"github.com/ginjaninja78/invoice-billing-converter/internal/reconcile"
	"github.com/ginjaninja78/invoice-billing-converter/internal/store"
	"github.com/ginjaninja78/invoice-billing-converter/internal/types"
	"github.com/ginjaninja78/invoice-billing-converter/internal/validation"
	"github.com/ginjaninja78/invoice-billing-converter/internal/xlsxparser"
	"github.com/ginjaninja78/invoice-billing-converter/internal/xlsxwriter"
)

// =============================================================================
// PORTS
// =============================================================================

// InvoiceStore is the part of store.Store the pipeline needs.
type InvoiceStore interface {
	EnsureAgency(ctx context.Context, name, country string) (string, error)
	EnsureClient(ctx context.Context, name, country string) (string, error)
	UpsertInvoice(ctx context.Context, inv *store.Invoice) (bool, error)
	EligibleAgencies(ctx context.Context, country string) ([]string, error)
	AssignLedgerDocument(ctx context.Context, invoiceNumber, country, documentID string) (bool, error)
	RecordArtifact(ctx context.Context, a store.Artifact) error
	Lock(ctx context.Context, key string) (func() error, error)
}

// ArtifactStore persists generated workbooks. Put replaces any artifact with
// the same name and returns where it was stored.
type ArtifactStore interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// =============================================================================
// INPUT / RESULT STRUCTURES
// =============================================================================

// BillingInput is one billing run.
type BillingInput struct {
	// Filename is the summary's original name; the month is read from it.
	Filename string
	Data     []byte

	// Month (1..12) and Year override the filename and the clock when non-zero.
	Month int
	Year  int

	DryRun bool
}

// CreditNoteInput is one credit-note run.
type CreditNoteInput struct {
	Filename string
	Data     []byte

	// LedgerFilename decides the ledger format: ".csv" is read as delimited
	// text, anything else as a workbook.
	LedgerFilename string
	LedgerData     []byte

	Month int
	Year  int

	// Eligible replaces the store's eligible agencies when non-nil.
	Eligible []string

	DryRun bool
}

// Result represents the outcome of one run.
type Result struct {
	RunID        string
	Kind         types.DocumentKind
	Jurisdiction string
	Period       canonical.ReportingPeriod

	// MonthFromClock is set when neither the caller nor the filename named
	// the month and the current month was used.
	MonthFromClock bool

	RowsRead         int
	Pairs            int
	InvoicesCreated  int
	InvoicesUpdated  int
	InvoicesAssigned int
	LedgerEntries    int

	ArtifactName string
	ArtifactPath string

	// Workbook is the serialized artifact, also set on dry runs.
	Workbook []byte

	DryRun   bool
	Duration time.Duration
}

// =============================================================================
// CONVERTER STRUCTURE
// =============================================================================

// Options configures a Converter. Store and Artifacts may be nil for
// converters that only perform dry runs.
type Options struct {
	Config    *config.MainConfig
	Store     InvoiceStore
	Artifacts ArtifactStore
	Logger    zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	// Jurisdictions and Months default to the built-in tables.
	Jurisdictions *canonical.JurisdictionTable
	Months        *canonical.MonthTable
}

// Converter runs the billing and credit-note pipelines.
type Converter struct {
	cfg           *config.MainConfig
	store         InvoiceStore
	artifacts     ArtifactStore
	log           zerolog.Logger
	now           func() time.Time
	jurisdictions canonical.JurisdictionTable
	months        canonical.MonthTable
	transformer   *Transformer
	generator     *Generator
}

// New creates a Converter. Unset configuration values take their defaults;
// the caller's Config is not modified.
func New(opts Options) (*Converter, error) {
	cfg := config.Default()
	if opts.Config != nil {
		copied := *opts.Config
		config.ApplyDefaults(&copied)
		cfg = &copied
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	transformer, err := NewTransformer(cfg.TransformationRules)
	if err != nil {
		return nil, fmt.Errorf("invalid transformation rules: %w", err)
	}

	c := &Converter{
		cfg:           cfg,
		store:         opts.Store,
		artifacts:     opts.Artifacts,
		log:           opts.Logger,
		now:           opts.Now,
		jurisdictions: canonical.DefaultJurisdictions(),
		months:        canonical.DefaultMonths(),
		transformer:   transformer,
		generator:     NewGenerator(cfg.Document),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if opts.Jurisdictions != nil {
		c.jurisdictions = *opts.Jurisdictions
	}
	if opts.Months != nil {
		c.months = *opts.Months
	}
	return c, nil
}

// =============================================================================
// BILLING
// =============================================================================

// RunBilling executes the billing pipeline.
func (c *Converter) RunBilling(ctx context.Context, in BillingInput) (*Result, error) {
	start := c.now()
	res := &Result{RunID: uuid.NewString(), Kind: types.KindBilling, DryRun: in.DryRun}
	log := c.log.With().Str("run_id", res.RunID).Str("kind", string(res.Kind)).Logger()

	log.Info().Str("file", in.Filename).Bool("dry_run", in.DryRun).Msg("Processing invoice summary")

	records, err := c.loadSummary(in.Filename, in.Data)
	if err != nil {
		return nil, err
	}
	res.RowsRead = len(records)

	if err := c.resolve(res, records, in.Filename, in.Month, in.Year, log); err != nil {
		return nil, err
	}
	log = log.With().Str("jurisdiction", res.Jurisdiction).Str("period", res.Period.Key()).Logger()

	if !in.DryRun {
		if err := c.requireStores(); err != nil {
			return nil, err
		}
		release, err := c.lock(ctx, res)
		if err != nil {
			return nil, err
		}
		defer c.unlock(release, log)

		for _, rec := range records {
			created, err := c.persist(ctx, rec, res.Jurisdiction, res.Period)
			if err != nil {
				return nil, err
			}
			if created {
				res.InvoicesCreated++
			} else {
				res.InvoicesUpdated++
			}
		}
		log.Debug().
			Int("created", res.InvoicesCreated).
			Int("updated", res.InvoicesUpdated).
			Msg("Invoices upserted")
	}

	pairs := c.generator.Billing(records, res.Period)
	res.Pairs = len(pairs)

	if err := c.finish(ctx, res, pairs, "billing", log); err != nil {
		return nil, err
	}
	res.Duration = c.now().Sub(start)
	return res, nil
}

// =============================================================================
// CREDIT NOTES
// =============================================================================

// RunCreditNotes executes the credit-note pipeline.
func (c *Converter) RunCreditNotes(ctx context.Context, in CreditNoteInput) (*Result, error) {
	start := c.now()
	res := &Result{RunID: uuid.NewString(), Kind: types.KindCreditNote, DryRun: in.DryRun}
	log := c.log.With().Str("run_id", res.RunID).Str("kind", string(res.Kind)).Logger()

	log.Info().
		Str("file", in.Filename).
		Str("ledger", in.LedgerFilename).
		Bool("dry_run", in.DryRun).
		Msg("Processing credit notes")

	records, err := c.loadSummary(in.Filename, in.Data)
	if err != nil {
		return nil, err
	}
	res.RowsRead = len(records)

	if err := c.resolve(res, records, in.Filename, in.Month, in.Year, log); err != nil {
		return nil, err
	}
	log = log.With().Str("jurisdiction", res.Jurisdiction).Str("period", res.Period.Key()).Logger()

	if !slices.Contains(c.cfg.CreditNoteJurisdictions, res.Jurisdiction) {
		return nil, fmt.Errorf("%w: %s", types.ErrJurisdictionNotSupported, res.Jurisdiction)
	}

	recon, err := c.loadLedger(in.LedgerFilename, in.LedgerData)
	if err != nil {
		return nil, err
	}
	res.LedgerEntries = recon.Len()
	for _, d := range recon.Duplicates() {
		log.Warn().
			Str("invoice", d.InvoiceNumber).
			Str("replaced", d.Replaced).
			Str("kept", d.Kept).
			Int("row", d.Row).
			Msg("Ledger cites an invoice more than once; keeping the later document")
	}
	log.Debug().Int("entries", recon.Len()).Msg("Reconciliation map built")

	eligibleNames := in.Eligible
	if eligibleNames == nil {
		if c.store == nil {
			return nil, errors.New("no invoice store configured")
		}
		eligibleNames, err = c.store.EligibleAgencies(ctx, res.Jurisdiction)
		if err != nil {
			return nil, types.External("load eligible agencies", err)
		}
	}
	if len(eligibleNames) == 0 {
		return nil, fmt.Errorf("%w: no agency in %q is marked to receive credit notes",
			types.ErrNoEligibleRecords, res.Jurisdiction)
	}
	eligible := NewEligibilitySet(eligibleNames...)

	var release func() error
	if !in.DryRun {
		if err := c.requireStores(); err != nil {
			return nil, err
		}
		release, err = c.lock(ctx, res)
		if err != nil {
			return nil, err
		}
		defer c.unlock(release, log)
	}

	pairs := c.generator.CreditNotes(records, recon, eligible, res.Period)
	res.Pairs = len(pairs)
	log.Debug().
		Int("records", len(records)).
		Int("pairs", len(pairs)).
		Msg("Records without an eligible agency or a ledger match were skipped")
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: check the agencies marked for credit notes and the ledger references",
			types.ErrNoEligibleRecords)
	}

	if !in.DryRun {
		assigned, err := c.assign(ctx, records, recon, res.Jurisdiction)
		if err != nil {
			return nil, err
		}
		res.InvoicesAssigned = assigned
	}

	if err := c.finish(ctx, res, pairs, "credit_notes", log); err != nil {
		return nil, err
	}
	res.Duration = c.now().Sub(start)
	return res, nil
}

// assign records the ledger document of every matched invoice, once per
// invoice number. Invoices the store does not know are not counted.
func (c *Converter) assign(ctx context.Context, records []types.SummaryRecord, recon reconcile.Map, jurisdiction string) (int, error) {
	seen := make(map[string]struct{}, len(records))
	assigned := 0
	for _, rec := range records {
		number := canonical.NormalizeInvoiceNumber(rec.InvoiceNumber())
		if _, ok := seen[number]; ok {
			continue
		}
		seen[number] = struct{}{}

		docID, ok := recon.Lookup(number)
		if !ok {
			continue
		}
		ok, err := c.store.AssignLedgerDocument(ctx, number, jurisdiction, docID)
		if err != nil {
			return assigned, types.External("assign ledger document", err)
		}
		if ok {
			assigned++
		}
	}
	return assigned, nil
}

// =============================================================================
// SHARED STEPS
// =============================================================================

// loadSummary reads, transforms and validates the summary workbook.
func (c *Converter) loadSummary(filename string, data []byte) ([]types.SummaryRecord, error) {
	opts := xlsxparser.SummaryOptions{
		SheetName:    c.cfg.Summary.SheetName,
		HeaderRow:    *c.cfg.Summary.HeaderRow,
		StatusColumn: c.cfg.Summary.StatusColumn,
	}

	records, err := xlsxparser.ReadInvoiceSummary(data, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(filename), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s has no invoice rows", types.ErrEmptyInput, filepath.Base(filename))
	}

	if err := c.transformer.TransformAll(records); err != nil {
		return nil, err
	}

	if r := validation.ValidateAll(records); !r.Valid {
		return nil, r.Err()
	}
	return records, nil
}

// loadLedger reads the ledger export and indexes it by invoice reference.
func (c *Converter) loadLedger(filename string, data []byte) (reconcile.Map, error) {
	var (
		entries []types.LedgerRecord
		err     error
	)
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		entries, err = csvparser.ReadLedger(data, c.cfg.Ledger)
	} else {
		entries, err = xlsxparser.ReadLedger(data)
	}
	if err != nil {
		return reconcile.Map{}, fmt.Errorf("failed to read ledger %s: %w", filepath.Base(filename), err)
	}
	if len(entries) == 0 {
		return reconcile.Map{}, fmt.Errorf("%w: ledger %s has no usable rows", types.ErrEmptyInput, filepath.Base(filename))
	}
	return reconcile.BuildMap(entries), nil
}

// resolve fills in the reporting period and jurisdiction of a run.
//
// MONTH RESOLUTION:
//  1. An explicit month wins
//  2. Otherwise the first month name found in the filename
//  3. Otherwise the current month, unless strict_month is set
//
// The year defaults to the current year. The jurisdiction comes from the
// currency of the first record.
func (c *Converter) resolve(res *Result, records []types.SummaryRecord, filename string, month, year int, log zerolog.Logger) error {
	now := c.now()

	if month == 0 {
		if m, ok := canonical.InferMonth(filepath.Base(filename), c.months); ok {
			month = m
		} else if c.cfg.StrictMonth {
			return fmt.Errorf("%w: %s", types.ErrMonthNotFound, filepath.Base(filename))
		} else {
			month = int(now.Month())
			res.MonthFromClock = true
			log.Warn().
				Str("file", filepath.Base(filename)).
				Int("month", month).
				Msg("No month name in filename; using the current month")
		}
	}
	if year == 0 {
		year = now.Year()
	}

	period, err := canonical.NewPeriod(year, month)
	if err != nil {
		return err
	}
	res.Period = period
	res.Jurisdiction = canonical.InferJurisdiction(records[0].Currency(), c.jurisdictions)
	return nil
}

// finish serializes the pairs and, outside dry runs, stores the artifact.
func (c *Converter) finish(ctx context.Context, res *Result, pairs []types.RowPair, fileType string, log zerolog.Logger) error {
	workbook, err := xlsxwriter.Write(Flatten(pairs))
	if err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	res.Workbook = workbook
	res.ArtifactName = ArtifactName(res.Kind, res.Period, res.Jurisdiction)

	if res.DryRun {
		log.Info().Str("artifact", res.ArtifactName).Int("pairs", res.Pairs).Msg("Dry run complete")
		return nil
	}

	path, err := c.artifacts.Put(ctx, res.ArtifactName, workbook)
	if err != nil {
		return types.External("store artifact", err)
	}
	res.ArtifactPath = path

	if err := c.store.RecordArtifact(ctx, store.Artifact{
		Filename:    res.ArtifactName,
		StoragePath: path,
		FileType:    fileType,
		Processed:   true,
		Status:      "active",
	}); err != nil {
		return types.External("record artifact", err)
	}

	log.Info().Str("artifact", path).Int("pairs", res.Pairs).Msg("Artifact stored")
	return nil
}

// persist upserts the agency, the client and the invoice of one record.
func (c *Converter) persist(ctx context.Context, rec types.SummaryRecord, jurisdiction string, period canonical.ReportingPeriod) (bool, error) {
	if _, err := c.store.EnsureAgency(ctx, rec.Agency(), jurisdiction); err != nil {
		return false, types.External("ensure agency", err)
	}
	clientID, err := c.store.EnsureClient(ctx, rec.Client(), jurisdiction)
	if err != nil {
		return false, types.External("ensure client", err)
	}

	created, err := c.store.UpsertInvoice(ctx, InvoiceFromRecord(rec, jurisdiction, period, clientID))
	if err != nil {
		return false, types.External("upsert invoice", err)
	}
	return created, nil
}

func (c *Converter) requireStores() error {
	if c.store == nil || c.artifacts == nil {
		return errors.New("invoice store and artifact store are required outside dry runs")
	}
	return nil
}

func (c *Converter) lock(ctx context.Context, res *Result) (func() error, error) {
	release, err := c.store.Lock(ctx, LockKey(res.Period, res.Jurisdiction))
	if err != nil {
		if errors.Is(err, types.ErrPeriodLocked) {
			return nil, err
		}
		return nil, types.External("acquire run lock", err)
	}
	return release, nil
}

func (c *Converter) unlock(release func() error, log zerolog.Logger) {
	if err := release(); err != nil {
		log.Error().Err(err).Msg("Failed to release run lock")
	}
}

// =============================================================================
// NAMING
// =============================================================================

// ArtifactName is <Kind>_<MonthName>_<JURISDICTION>.xlsx.
func ArtifactName(kind types.DocumentKind, period canonical.ReportingPeriod, jurisdiction string) string {
	return fmt.Sprintf("%s_%s_%s.xlsx", kind, period.MonthName(), strings.ToUpper(jurisdiction))
}

// LockKey identifies the runs that must not overlap.
func LockKey(period canonical.ReportingPeriod, jurisdiction string) string {
	return period.Key() + "/" + jurisdiction
}

// =============================================================================
// TYPE CONVERSION FUNCTIONS
// =============================================================================

// InvoiceFromRecord maps a summary record to the persisted invoice.
func InvoiceFromRecord(rec types.SummaryRecord, jurisdiction string, period canonical.ReportingPeriod, clientID string) *store.Invoice {
	inv := &store.Invoice{
		InvoiceNumber:     canonical.NormalizeInvoiceNumber(rec.InvoiceNumber()),
		Country:           jurisdiction,
		InvoiceDate:       period.IssueDate(),
		GrossValue:        types.ParseAmount(rec.Field(types.ColGross)),
		NetValue:          rec.Net(),
		Channel:           rec.Channel(),
		Agency:            rec.Agency(),
		OrderReference:    rec.OrderReference(),
		ClientID:          clientID,
		Product:           rec.Field(types.ColProduct),
		Feed:              rec.Field(types.ColFeed),
		CampaignNumber:    rec.Field(types.ColCampaignNumber),
		CommissionPercent: types.ParseAmount(rec.Field(types.ColCommissionPercent)),
		CommissionAmount:  types.ParseAmount(rec.Field(types.ColCommission)),
		SalesExecutive:    rec.Field(types.ColSalesExecutive),
		SystemSource:      rec.Field(types.ColSystem),
		BusinessType:      rec.Field(types.ColBusinessType),
		DocumentType:      rec.Field(types.ColDocumentType),
		CompanyCode:       rec.Field(types.ColCompanyCode),
		ChannelByFeed:     rec.Field(types.ColChannelByFeed),
		ExhibitionMonth:   period.Key(),
	}
	if spots := types.ParseAmount(rec.Field(types.ColSpotCount)); spots.Valid {
		n := spots.Decimal.IntPart()
		inv.SpotCount = &n
	}
	return inv
}
