// =============================================================================
// Invoice Billing Converter - Certification Dispatcher
// =============================================================================
//
// Mails signed certification PDFs to the clients they belong to.
//
// FILE NAMING:
//   The invoice number is the last "_"-separated token of the file name,
//   without the .pdf extension, and must be all digits:
//     Certificacion_ClientB_100.pdf  -> invoice 100
//     Certificacion_ClientB.pdf      -> skipped
//
// FLOW:
//   1. Discover *.pdf files in the certifications directory
//   2. Resolve each invoice number to its client ("100", then "100.0")
//   3. Group files by client
//   4. Clients without addresses: notify the error recipients, keep the files
//   5. Otherwise: one email per client with every PDF attached, then archive
//
// A failed delivery is logged and the client's files stay in place for the
// next run. Store failures abort the dispatch.
//
// =============================================================================

package certify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ginjaninja78/invoice-billing-converter/internal/canonical"
	"github.com/ginjaninja78/invoice-billing-converter/internal/notify"
	"github.com/ginjaninja78/invoice-billing-converter/internal/store"
	"github.com/ginjaninja78/invoice-billing-converter/internal/types"
	"github.com/ginjaninja78/invoice-billing-converter/pkg/utils"
)

// ClientDirectory resolves invoices to clients and their addresses.
type ClientDirectory interface {
	ClientForInvoice(ctx context.Context, invoiceNumber string) (*store.Client, error)
	ClientEmails(ctx context.Context, clientID string) ([]string, error)
}

// Report summarizes one dispatch.
type Report struct {
	// Sent counts files delivered and archived.
	Sent int

	// WithoutAddress counts files held back because their client has no address.
	WithoutAddress        int
	ClientsWithoutAddress int

	// Skipped lists files whose name carries no invoice number.
	Skipped []string

	// Unmatched lists files whose invoice is unknown to the store.
	Unmatched []string

	// Failed lists files whose email could not be delivered.
	Failed []string
}

// Dispatcher sends the certifications found in one directory.
type Dispatcher struct {
	Dir      string
	Files    *utils.FileManager
	Clients  ClientDirectory
	Notifier notify.Notifier
	Logger   zerolog.Logger

	// Now defaults to time.Now; the subject names the month before it.
	Now func() time.Time
}

type clientBatch struct {
	client *store.Client
	files  []string
}

// Dispatch runs one pass over the certifications directory.
func (d *Dispatcher) Dispatch(ctx context.Context) (*Report, error) {
	report := &Report{}

	files, err := d.Files.DiscoverFiles(d.Dir, "*.pdf")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		d.Logger.Info().Str("dir", d.Dir).Msg("No certifications pending")
		return report, nil
	}

	var batches []*clientBatch
	byClient := make(map[string]*clientBatch)

	for _, path := range files {
		name := filepath.Base(path)
		number, ok := InvoiceNumberFromFilename(name)
		if !ok {
			d.Logger.Warn().Str("file", name).Msg("No invoice number in file name, skipping")
			report.Skipped = append(report.Skipped, name)
			continue
		}

		client, err := d.resolveClient(ctx, number)
		if err != nil {
			return nil, err
		}
		if client == nil {
			d.Logger.Warn().Str("file", name).Str("invoice", number).Msg("Invoice not found, skipping")
			report.Unmatched = append(report.Unmatched, name)
			continue
		}

		b, ok := byClient[client.ID]
		if !ok {
			b = &clientBatch{client: client}
			byClient[client.ID] = b
			batches = append(batches, b)
		}
		b.files = append(b.files, path)
	}

	period := canonical.PeriodOf(d.now()).Previous()

	for _, b := range batches {
		if err := d.sendBatch(ctx, b, period, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func (d *Dispatcher) sendBatch(ctx context.Context, b *clientBatch, period canonical.ReportingPeriod, report *Report) error {
	log := d.Logger.With().Str("client", b.client.Name).Logger()

	addresses, err := d.Clients.ClientEmails(ctx, b.client.ID)
	if err != nil {
		return types.External("load client emails", err)
	}

	names := make([]string, len(b.files))
	for i, p := range b.files {
		names[i] = filepath.Base(p)
	}

	if len(addresses) == 0 {
		log.Warn().Int("files", len(b.files)).Msg("Client has no email addresses")
		subject := fmt.Sprintf("[AVISO] Certificaciones sin correo del cliente - %s", b.client.Name)
		body := fmt.Sprintf("Las siguientes certificaciones no fueron enviadas porque no se encontraron correos para el cliente %s:\n\n%s",
			b.client.Name, strings.Join(names, "\n"))
		if err := d.Notifier.SendError(ctx, subject, body); err != nil {
			log.Error().Err(err).Msg("Failed to send missing-address notification")
		}
		report.WithoutAddress += len(b.files)
		report.ClientsWithoutAddress++
		return nil
	}

	attachments := make([]notify.Attachment, 0, len(b.files))
	for _, p := range b.files {
		content, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", filepath.Base(p), err)
		}
		attachments = append(attachments, notify.Attachment{
			Filename:    filepath.Base(p),
			ContentType: "application/pdf",
			Content:     content,
		})
	}

	msg := notify.Message{
		To:          addresses,
		Subject:     Subject(period, b.client.Name),
		Text:        Body(period),
		Attachments: attachments,
	}
	if err := d.Notifier.Send(ctx, msg); err != nil {
		log.Error().Err(err).Msg("Failed to send certifications")
		report.Failed = append(report.Failed, names...)
		return nil
	}

	for _, p := range b.files {
		if _, err := d.Files.ArchiveInputFile(p); err != nil {
			log.Error().Err(err).Str("file", filepath.Base(p)).Msg("Sent but could not archive")
		}
	}
	report.Sent += len(b.files)
	log.Info().Int("files", len(b.files)).Strs("to", addresses).Msg("Certifications sent")
	return nil
}

// resolveClient looks the invoice up as given, then with a ".0" suffix.
func (d *Dispatcher) resolveClient(ctx context.Context, number string) (*store.Client, error) {
	for _, candidate := range []string{number, number + ".0"} {
		c, err := d.Clients.ClientForInvoice(ctx, candidate)
		if err != nil {
			return nil, types.External("resolve client", err)
		}
		if c != nil {
			return c, nil
		}
	}
	return nil, nil
}

func (d *Dispatcher) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// InvoiceNumberFromFilename returns the digits after the last "_".
func InvoiceNumberFromFilename(name string) (string, bool) {
	last := name
	if i := strings.LastIndex(name, "_"); i >= 0 {
		last = name[i+1:]
	}
	if strings.HasSuffix(strings.ToLower(last), ".pdf") {
		last = last[:len(last)-4]
	}
	if last == "" {
		return "", false
	}
	for _, r := range last {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return last, true
}

// Subject is the certification email subject for a client.
func Subject(period canonical.ReportingPeriod, client string) string {
	return fmt.Sprintf("Certificación mes %s %d - %s", period.MonthName(), period.Year, client)
}

// Body is the certification email text.
func Body(period canonical.ReportingPeriod) string {
	return fmt.Sprintf("Buenas tardes,\n\nAdjuntamos certificaciones correspondientes al mes de %s %d.\n\nSaludos cordiales.",
		period.MonthName(), period.Year)
}
