package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/ginjaninja78/invoice-billing-converter/internal/types"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// PostgresStore is the shared-server backend.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// OpenPostgres applies pending migrations, then connects a pool with the
// NUMERIC <-> decimal codec registered on every connection.
func OpenPostgres(ctx context.Context, dsn string, log zerolog.Logger) (*PostgresStore, error) {
	if err := migratePostgres(dsn, log); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping DB: %w", err)
	}

	log.Debug().Msg("postgres store ready")
	return &PostgresStore{pool: pool, log: log}, nil
}

// migratePostgres runs the embedded migrations over a short-lived
// database/sql handle; the pool never sees the migration lock.
func migratePostgres(dsn string, log zerolog.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("could not create postgres migration driver: %w", err)
	}

	source, err := iofs.New(postgresMigrations, "migrations/postgres")
	if err != nil {
		db.Close()
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		db.Close()
		return fmt.Errorf("migration instance creation failed: %w", err)
	}
	defer m.Close()

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

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// =============================================================================
// AGENCIES AND CLIENTS
// =============================================================================

func (s *PostgresStore) EnsureAgency(ctx context.Context, name, country string) (string, error) {
	return s.ensureNamed(ctx, "agencies", name, country)
}

func (s *PostgresStore) EnsureClient(ctx context.Context, name, country string) (string, error) {
	return s.ensureNamed(ctx, "clients", name, country)
}

func (s *PostgresStore) ensureNamed(ctx context.Context, table, name, country string) (string, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, country) VALUES ($1, $2, $3)
		ON CONFLICT (name, country) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, table)

	var id string
	if err := s.pool.QueryRow(ctx, query, uuid.NewString(), name, country).Scan(&id); err != nil {
		return "", fmt.Errorf("ensure %s: %w", table, err)
	}
	return id, nil
}

func (s *PostgresStore) EligibleAgencies(ctx context.Context, country string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name FROM agencies WHERE country = $1 AND receives_credit_note ORDER BY name`, country)
	if err != nil {
		return nil, fmt.Errorf("query eligible agencies: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PostgresStore) SetCreditNoteEligibility(ctx context.Context, name, country string, eligible bool) error {
	id, err := s.EnsureAgency(ctx, name, country)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE agencies SET receives_credit_note = $1 WHERE id = $2`, eligible, id); err != nil {
		return fmt.Errorf("update agency: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAgencies(ctx context.Context, country string) ([]Agency, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, country, receives_credit_note FROM agencies
		WHERE $1 = '' OR country = $1
		ORDER BY country, name`, country)
	if err != nil {
		return nil, fmt.Errorf("query agencies: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Agency, error) {
		var a Agency
		err := row.Scan(&a.ID, &a.Name, &a.Country, &a.ReceivesCreditNote)
		return a, err
	})
}

// =============================================================================
// INVOICES
// =============================================================================

func (s *PostgresStore) UpsertInvoice(ctx context.Context, inv *Invoice) (bool, error) {
	var inserted bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO invoices (
			id, invoice_number, country, invoice_date, gross_value, net_value,
			channel, agency, order_reference, client_id, product, feed,
			campaign_number, commission_percent, commission_amount, sales_executive,
			system_source, spot_count, business_type, document_type, company_code,
			channel_by_feed, exhibition_month
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		          $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (invoice_number, country) DO UPDATE SET
			invoice_date       = EXCLUDED.invoice_date,
			gross_value        = EXCLUDED.gross_value,
			net_value          = EXCLUDED.net_value,
			channel            = EXCLUDED.channel,
			agency             = EXCLUDED.agency,
			order_reference    = EXCLUDED.order_reference,
			client_id          = EXCLUDED.client_id,
			product            = EXCLUDED.product,
			feed               = EXCLUDED.feed,
			campaign_number    = EXCLUDED.campaign_number,
			commission_percent = EXCLUDED.commission_percent,
			commission_amount  = EXCLUDED.commission_amount,
			sales_executive    = EXCLUDED.sales_executive,
			system_source      = EXCLUDED.system_source,
			spot_count         = EXCLUDED.spot_count,
			business_type      = EXCLUDED.business_type,
			document_type      = EXCLUDED.document_type,
			company_code       = EXCLUDED.company_code,
			channel_by_feed    = EXCLUDED.channel_by_feed,
			exhibition_month   = EXCLUDED.exhibition_month,
			updated_at         = now()
		RETURNING (xmax = 0)`,
		uuid.NewString(), inv.InvoiceNumber, inv.Country, inv.InvoiceDate,
		inv.GrossValue, inv.NetValue, inv.Channel, inv.Agency, inv.OrderReference,
		nullIfEmpty(inv.ClientID), inv.Product, inv.Feed, inv.CampaignNumber,
		inv.CommissionPercent, inv.CommissionAmount, inv.SalesExecutive, inv.SystemSource,
		inv.SpotCount, inv.BusinessType, inv.DocumentType, inv.CompanyCode,
		inv.ChannelByFeed, inv.ExhibitionMonth,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert invoice %s/%s: %w", inv.InvoiceNumber, inv.Country, err)
	}
	return inserted, nil
}

func (s *PostgresStore) GetInvoice(ctx context.Context, invoiceNumber, country string) (*Invoice, error) {
	var (
		inv      Invoice
		clientID *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT invoice_number, country, invoice_date, gross_value, net_value, channel, agency,
		       order_reference, client_id, product, feed, campaign_number, commission_percent,
		       commission_amount, sales_executive, system_source, spot_count, business_type,
		       document_type, company_code, channel_by_feed, exhibition_month,
		       assigned_invoice_number
		FROM invoices WHERE invoice_number = $1 AND country = $2`, invoiceNumber, country).Scan(
		&inv.InvoiceNumber, &inv.Country, &inv.InvoiceDate, &inv.GrossValue, &inv.NetValue,
		&inv.Channel, &inv.Agency, &inv.OrderReference, &clientID, &inv.Product, &inv.Feed,
		&inv.CampaignNumber, &inv.CommissionPercent, &inv.CommissionAmount, &inv.SalesExecutive,
		&inv.SystemSource, &inv.SpotCount, &inv.BusinessType, &inv.DocumentType,
		&inv.CompanyCode, &inv.ChannelByFeed, &inv.ExhibitionMonth, &inv.AssignedInvoiceNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if clientID != nil {
		inv.ClientID = *clientID
	}
	return &inv, nil
}

func (s *PostgresStore) AssignLedgerDocument(ctx context.Context, invoiceNumber, country, documentID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE invoices SET assigned_invoice_number = $1, updated_at = now()
		WHERE invoice_number = $2 AND country = $3`, documentID, invoiceNumber, country)
	if err != nil {
		return false, fmt.Errorf("assign ledger document: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// =============================================================================
// ARTIFACTS, CLIENT ADDRESSES
// =============================================================================

func (s *PostgresStore) RecordArtifact(ctx context.Context, a Artifact) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO files (id, filename, storage_path, file_type, processed, status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), a.Filename, a.StoragePath, a.FileType, a.Processed, a.Status)
	if err != nil {
		return fmt.Errorf("record artifact: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClientForInvoice(ctx context.Context, invoiceNumber string) (*Client, error) {
	var c Client
	err := s.pool.QueryRow(ctx, `
		SELECT c.id, c.name, c.country
		FROM invoices i JOIN clients c ON c.id = i.client_id
		WHERE i.invoice_number = $1
		ORDER BY i.updated_at DESC LIMIT 1`, invoiceNumber).Scan(&c.ID, &c.Name, &c.Country)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("client for invoice: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ClientEmails(ctx context.Context, clientID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address FROM client_emails WHERE client_id = $1 ORDER BY address`, clientID)
	if err != nil {
		return nil, fmt.Errorf("query client emails: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PostgresStore) AddClientEmail(ctx context.Context, clientName, country, address string) error {
	id, err := s.EnsureClient(ctx, clientName, country)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO client_emails (client_id, address) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		id, strings.ToLower(strings.TrimSpace(address)))
	if err != nil {
		return fmt.Errorf("add client email: %w", err)
	}
	return nil
}

// =============================================================================
// RUN LOCK
// =============================================================================

// Lock takes a session-level advisory lock. The connection holding it is
// kept out of the pool until release; a crashed process drops it with the session.
func (s *PostgresStore) Lock(ctx context.Context, key string) (func() error, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, fmt.Errorf("%w: %s", types.ErrPeriodLocked, key)
	}

	s.log.Debug().Str("key", key).Msg("advisory lock acquired")
	return func() error {
		defer conn.Release()
		_, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, key)
		return err
	}, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ Store = (*PostgresStore)(nil)
