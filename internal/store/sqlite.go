package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/ginjaninja78/invoice-billing-converter/internal/types"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// SQLiteStore is the default single-file backend.
type SQLiteStore struct {
	db    *sql.DB
	log   zerolog.Logger
	owner string
	now   func() time.Time
}

// OpenSQLite opens (creating if needed) the database file at path and applies
// pending migrations.
func OpenSQLite(ctx context.Context, path string, log zerolog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}

	// One writer at a time; sqlite locks the whole file anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrateSQLite(db, path, log); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug().Str("path", path).Msg("sqlite store ready")
	return &SQLiteStore{
		db:    db,
		log:   log,
		owner: uuid.NewString(),
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

func migrateSQLite(db *sql.DB, path string, log zerolog.Logger) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create sqlite migration driver: %w", err)
	}

	source, err := iofs.New(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	// m.Close would close db as well, so the instance is left to the GC.
	m, err := migrate.NewWithInstance("iofs", source, path, driver)
	if err != nil {
		return fmt.Errorf("migration instance creation failed: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debug().Msg("no new database migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	log.Info().Msg("database migrations applied")
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) timestamp() string {
	return s.now().Format(timeLayout)
}

// =============================================================================
// AGENCIES AND CLIENTS
// =============================================================================

func (s *SQLiteStore) EnsureAgency(ctx context.Context, name, country string) (string, error) {
	return s.ensureNamed(ctx, "agencies", name, country)
}

func (s *SQLiteStore) EnsureClient(ctx context.Context, name, country string) (string, error) {
	return s.ensureNamed(ctx, "clients", name, country)
}

// ensureNamed implements get-or-create for the (name, country) keyed tables.
func (s *SQLiteStore) ensureNamed(ctx context.Context, table, name, country string) (string, error) {
	insert := fmt.Sprintf(
		`INSERT INTO %s (id, name, country, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (name, country) DO NOTHING`, table)
	if _, err := s.db.ExecContext(ctx, insert, uuid.NewString(), name, country, s.timestamp()); err != nil {
		return "", fmt.Errorf("insert into %s: %w", table, err)
	}

	var id string
	query := fmt.Sprintf(`SELECT id FROM %s WHERE name = ? AND country = ?`, table)
	if err := s.db.QueryRowContext(ctx, query, name, country).Scan(&id); err != nil {
		return "", fmt.Errorf("select from %s: %w", table, err)
	}
	return id, nil
}

func (s *SQLiteStore) EligibleAgencies(ctx context.Context, country string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM agencies WHERE country = ? AND receives_credit_note = 1 ORDER BY name`, country)
	if err != nil {
		return nil, fmt.Errorf("query eligible agencies: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) SetCreditNoteEligibility(ctx context.Context, name, country string, eligible bool) error {
	id, err := s.EnsureAgency(ctx, name, country)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE agencies SET receives_credit_note = ? WHERE id = ?`, boolInt(eligible), id); err != nil {
		return fmt.Errorf("update agency: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAgencies(ctx context.Context, country string) ([]Agency, error) {
	query := `SELECT id, name, country, receives_credit_note FROM agencies`
	var args []any
	if country != "" {
		query += ` WHERE country = ?`
		args = append(args, country)
	}
	query += ` ORDER BY country, name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query agencies: %w", err)
	}
	defer rows.Close()

	var out []Agency
	for rows.Next() {
		var a Agency
		var flag int
		if err := rows.Scan(&a.ID, &a.Name, &a.Country, &flag); err != nil {
			return nil, err
		}
		a.ReceivesCreditNote = flag != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// INVOICES
// =============================================================================

func (s *SQLiteStore) UpsertInvoice(ctx context.Context, inv *Invoice) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := s.timestamp()
	var id string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM invoices WHERE invoice_number = ? AND country = ?`,
		inv.InvoiceNumber, inv.Country).Scan(&id)

	created := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true
		_, err = tx.ExecContext(ctx, `
			INSERT INTO invoices (
				id, invoice_number, country, invoice_date, gross_value, net_value,
				channel, agency, order_reference, client_id, product, feed,
				campaign_number, commission_percent, commission_amount, sales_executive,
				system_source, spot_count, business_type, document_type, company_code,
				channel_by_feed, exhibition_month, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), inv.InvoiceNumber, inv.Country, inv.InvoiceDate.Format("2006-01-02"),
			inv.GrossValue, inv.NetValue, inv.Channel, inv.Agency, inv.OrderReference,
			nullString(inv.ClientID), inv.Product, inv.Feed, inv.CampaignNumber,
			inv.CommissionPercent, inv.CommissionAmount, inv.SalesExecutive, inv.SystemSource,
			inv.SpotCount, inv.BusinessType, inv.DocumentType, inv.CompanyCode,
			inv.ChannelByFeed, inv.ExhibitionMonth, now, now)
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE invoices SET
				invoice_date = ?, gross_value = ?, net_value = ?, channel = ?, agency = ?,
				order_reference = ?, client_id = ?, product = ?, feed = ?, campaign_number = ?,
				commission_percent = ?, commission_amount = ?, sales_executive = ?,
				system_source = ?, spot_count = ?, business_type = ?, document_type = ?,
				company_code = ?, channel_by_feed = ?, exhibition_month = ?, updated_at = ?
			WHERE id = ?`,
			inv.InvoiceDate.Format("2006-01-02"), inv.GrossValue, inv.NetValue, inv.Channel,
			inv.Agency, inv.OrderReference, nullString(inv.ClientID), inv.Product, inv.Feed,
			inv.CampaignNumber, inv.CommissionPercent, inv.CommissionAmount, inv.SalesExecutive,
			inv.SystemSource, inv.SpotCount, inv.BusinessType, inv.DocumentType,
			inv.CompanyCode, inv.ChannelByFeed, inv.ExhibitionMonth, now, id)
	}
	if err != nil {
		return false, fmt.Errorf("upsert invoice %s/%s: %w", inv.InvoiceNumber, inv.Country, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

func (s *SQLiteStore) GetInvoice(ctx context.Context, invoiceNumber, country string) (*Invoice, error) {
	var (
		inv      Invoice
		date     string
		clientID sql.NullString
		spot     sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT invoice_number, country, invoice_date, gross_value, net_value, channel, agency,
		       order_reference, client_id, product, feed, campaign_number, commission_percent,
		       commission_amount, sales_executive, system_source, spot_count, business_type,
		       document_type, company_code, channel_by_feed, exhibition_month,
		       assigned_invoice_number
		FROM invoices WHERE invoice_number = ? AND country = ?`, invoiceNumber, country).Scan(
		&inv.InvoiceNumber, &inv.Country, &date, &inv.GrossValue, &inv.NetValue, &inv.Channel,
		&inv.Agency, &inv.OrderReference, &clientID, &inv.Product, &inv.Feed, &inv.CampaignNumber,
		&inv.CommissionPercent, &inv.CommissionAmount, &inv.SalesExecutive, &inv.SystemSource,
		&spot, &inv.BusinessType, &inv.DocumentType, &inv.CompanyCode, &inv.ChannelByFeed,
		&inv.ExhibitionMonth, &inv.AssignedInvoiceNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}

	inv.InvoiceDate, err = time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("invoice %s has bad date %q: %w", invoiceNumber, date, err)
	}
	inv.ClientID = clientID.String
	if spot.Valid {
		inv.SpotCount = &spot.Int64
	}
	return &inv, nil
}

func (s *SQLiteStore) AssignLedgerDocument(ctx context.Context, invoiceNumber, country, documentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET assigned_invoice_number = ?, updated_at = ?
		 WHERE invoice_number = ? AND country = ?`,
		documentID, s.timestamp(), invoiceNumber, country)
	if err != nil {
		return false, fmt.Errorf("assign ledger document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// =============================================================================
// ARTIFACTS, CLIENT ADDRESSES
// =============================================================================

func (s *SQLiteStore) RecordArtifact(ctx context.Context, a Artifact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (id, filename, storage_path, file_type, processed, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), a.Filename, a.StoragePath, a.FileType, boolInt(a.Processed), a.Status, s.timestamp())
	if err != nil {
		return fmt.Errorf("record artifact: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClientForInvoice(ctx context.Context, invoiceNumber string) (*Client, error) {
	var c Client
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.name, c.country
		FROM invoices i JOIN clients c ON c.id = i.client_id
		WHERE i.invoice_number = ?
		ORDER BY i.updated_at DESC LIMIT 1`, invoiceNumber).Scan(&c.ID, &c.Name, &c.Country)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("client for invoice: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) ClientEmails(ctx context.Context, clientID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT address FROM client_emails WHERE client_id = ? ORDER BY address`, clientID)
	if err != nil {
		return nil, fmt.Errorf("query client emails: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddClientEmail(ctx context.Context, clientName, country, address string) error {
	id, err := s.EnsureClient(ctx, clientName, country)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO client_emails (client_id, address) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		id, strings.ToLower(strings.TrimSpace(address)))
	if err != nil {
		return fmt.Errorf("add client email: %w", err)
	}
	return nil
}

// =============================================================================
// RUN LOCK
// =============================================================================

// Lock takes the row-level run lock for key. Locks older than staleLockAfter
// are taken over.
func (s *SQLiteStore) Lock(ctx context.Context, key string) (func() error, error) {
	now := s.now()
	cutoff := now.Add(-staleLockAfter).Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM run_locks WHERE lock_key = ? AND acquired_at < ?`, key, cutoff); err != nil {
		return nil, fmt.Errorf("expire lock: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO run_locks (lock_key, owner, acquired_at) VALUES (?, ?, ?)
		 ON CONFLICT (lock_key) DO NOTHING`, key, s.owner, now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrPeriodLocked, key)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lock: %w", err)
	}

	s.log.Debug().Str("key", key).Msg("run lock acquired")
	return func() error {
		_, err := s.db.ExecContext(context.Background(),
			`DELETE FROM run_locks WHERE lock_key = ? AND owner = ?`, key, s.owner)
		return err
	}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Store = (*SQLiteStore)(nil)
