package ledger

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mamadbah2/dairy/internal/billing"
	"github.com/mamadbah2/dairy/internal/domain/models"
)

// ErrArchiveDisabled is returned when no invoice archive is configured.
var ErrArchiveDisabled = errors.New("invoice archive is not configured")

const pdfContentType = "application/pdf"

// Archiver stores rendered documents under a key.
type Archiver interface {
	PutObject(ctx context.Context, key, contentType string, body []byte) error
}

// PDFRenderer turns an invoice into a PDF.
type PDFRenderer interface {
	PDF(ctx context.Context, doc billing.InvoiceDocument) ([]byte, error)
}

// ArchiveReport lists the invoices stored for a period.
type ArchiveReport struct {
	PeriodLabel string           `json:"period"`
	Stored      []string         `json:"stored"`
	Failed      []ArchiveFailure `json:"failed"`
}

// ArchiveFailure records an invoice that could not be stored.
type ArchiveFailure struct {
	CustomerID string `json:"customerId"`
	Error      string `json:"error"`
}

// ArchiveKey is the object key of a customer's invoice for a period.
func ArchiveKey(customerID string, period billing.Period) string {
	label := strings.ReplaceAll(period.String(), " ", "_")
	return path.Join(label, customerID+".pdf")
}

// ArchiveInvoices renders the invoice of every customer for period and
// stores the PDFs. A failing customer does not stop the others.
func (s *Service) ArchiveInvoices(ctx context.Context, period billing.Period) (ArchiveReport, error) {
	if s.opts.Archive == nil || s.opts.Renderer == nil {
		return ArchiveReport{}, ErrArchiveDisabled
	}

	customers, err := s.Customers(ctx)
	if err != nil {
		return ArchiveReport{}, err
	}

	summaries, err := s.summarizeAll(ctx, customers, period)
	if err != nil {
		return ArchiveReport{}, err
	}

	report := ArchiveReport{PeriodLabel: period.String(), Stored: []string{}, Failed: []ArchiveFailure{}}
	var errs error

	for i, customer := range customers {
		key := ArchiveKey(customer.ID, period)
		if err := s.archiveOne(ctx, key, customer, summaries[i]); err != nil {
			s.logger.Error("failed to archive invoice", zap.String("customer_id", customer.ID), zap.Error(err))
			report.Failed = append(report.Failed, ArchiveFailure{CustomerID: customer.ID, Error: err.Error()})
			errs = multierr.Append(errs, fmt.Errorf("archive customer %s: %w", customer.ID, err))
			continue
		}
		report.Stored = append(report.Stored, key)
	}

	s.logger.Info("invoices archived",
		zap.String("period", report.PeriodLabel),
		zap.Int("stored", len(report.Stored)),
		zap.Int("failed", len(report.Failed)))

	return report, errs
}

func (s *Service) archiveOne(ctx context.Context, key string, customer models.Customer, summary billing.PeriodSummary) error {
	doc, err := billing.BuildInvoice(customer, summary, s.opts.Location)
	if err != nil {
		return err
	}

	body, err := s.opts.Renderer.PDF(ctx, doc)
	if err != nil {
		return fmt.Errorf("render invoice: %w", err)
	}

	if err := s.opts.Archive.PutObject(ctx, key, pdfContentType, body); err != nil {
		return fmt.Errorf("store invoice: %w", err)
	}
	return nil
}
