// =============================================================================
// Invoice Billing Converter - Invoice Store
// =============================================================================
//
// Persistence for agencies, clients, invoices and generated artifacts.
//
// BACKENDS:
//   - sqlite   : modernc.org/sqlite (pure Go), schema managed by golang-migrate
//   - postgres : pgx/v5 pool with shopspring/decimal NUMERIC codec, schema
//     managed by golang-migrate (pgx/v5 driver)
//
// IDEMPOTENCY:
//   Invoices are keyed by (invoice_number, country). Upserting the same key
//   twice updates the existing row; it never creates a duplicate. Agencies and
//   clients are keyed by (name, country) and created on first sight.
//
// LOCKING:
//   Lock serializes runs for one (period, jurisdiction) key across processes.
//   A second run for the same key fails fast with types.ErrPeriodLocked.
//
// =============================================================================

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/invoice-billing-converter/internal/config"
)

// =============================================================================
// MODELS
// =============================================================================

// Agency is the billed counterparty of an invoice.
type Agency struct {
	ID                 string
	Name               string
	Country            string
	ReceivesCreditNote bool
}

// Client is the advertiser an invoice was issued for.
type Client struct {
	ID      string
	Name    string
	Country string
}

// Invoice is the canonical record persisted for every summary row.
type Invoice struct {
	InvoiceNumber string
	Country       string

	// InvoiceDate is the last day of the reporting month.
	InvoiceDate time.Time

	GrossValue decimal.NullDecimal
	NetValue   decimal.NullDecimal

	Channel        string
	Agency         string
	OrderReference string
	ClientID       string

	Product           string
	Feed              string
	CampaignNumber    string
	CommissionPercent decimal.NullDecimal
	CommissionAmount  decimal.NullDecimal
	SalesExecutive    string
	SystemSource      string
	SpotCount         *int64
	BusinessType      string
	DocumentType      string
	CompanyCode       string
	ChannelByFeed     string

	// ExhibitionMonth is the reporting period as YYYY-MM.
	ExhibitionMonth string

	// AssignedInvoiceNumber is the ledger document issued for the invoice.
	// It is read back by GetInvoice and ignored by UpsertInvoice.
	AssignedInvoiceNumber string
}

// Artifact records a generated workbook.
type Artifact struct {
	Filename    string
	StoragePath string
	FileType    string
	Processed   bool
	Status      string
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is implemented by the sqlite and postgres backends.
type Store interface {
	// EnsureAgency returns the id of the agency, creating it if needed.
	EnsureAgency(ctx context.Context, name, country string) (string, error)

	// EnsureClient returns the id of the client, creating it if needed.
	EnsureClient(ctx context.Context, name, country string) (string, error)

	// UpsertInvoice inserts or updates by (invoice number, country). The
	// assigned ledger document number of an existing row is preserved.
	UpsertInvoice(ctx context.Context, inv *Invoice) (created bool, err error)

	// EligibleAgencies lists agencies of a country flagged for credit notes.
	EligibleAgencies(ctx context.Context, country string) ([]string, error)

	SetCreditNoteEligibility(ctx context.Context, name, country string, eligible bool) error
	ListAgencies(ctx context.Context, country string) ([]Agency, error)

	// AssignLedgerDocument stores the accounting document number issued for
	// an invoice. It reports false when no such invoice exists.
	AssignLedgerDocument(ctx context.Context, invoiceNumber, country, documentID string) (bool, error)

	// GetInvoice returns nil, nil when the invoice is unknown.
	GetInvoice(ctx context.Context, invoiceNumber, country string) (*Invoice, error)

	RecordArtifact(ctx context.Context, a Artifact) error

	// ClientForInvoice returns nil, nil when the invoice is unknown.
	ClientForInvoice(ctx context.Context, invoiceNumber string) (*Client, error)
	ClientEmails(ctx context.Context, clientID string) ([]string, error)
	AddClientEmail(ctx context.Context, clientName, country, address string) error

	// Lock acquires the run lock for key. The returned function releases it.
	Lock(ctx context.Context, key string) (release func() error, err error)

	Close() error
}

// Open connects to the backend selected by cfg and brings its schema up to date.
func Open(ctx context.Context, cfg config.StoreConfig, log zerolog.Logger) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return OpenSQLite(ctx, cfg.DSN, log)
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// staleLockAfter is how long a sqlite run lock survives a crashed owner.
const staleLockAfter = time.Hour
