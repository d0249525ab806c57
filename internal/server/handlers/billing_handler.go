package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/dairy/internal/billing"
	"github.com/mamadbah2/dairy/internal/domain/models"
	"github.com/mamadbah2/dairy/internal/render"
	"github.com/mamadbah2/dairy/internal/service/ledger"
)

const dateLayout = "2006-01-02"

// Ledger is the billing surface exposed over HTTP.
type Ledger interface {
	Location() *time.Location
	RegisterCustomer(ctx context.Context, in ledger.CustomerInput) (models.Customer, error)
	Customers(ctx context.Context) ([]models.Customer, error)
	RecordEntry(ctx context.Context, customerID string, in ledger.EntryInput) (models.Entry, error)
	CorrectEntry(ctx context.Context, customerID, entryID, reason string) (models.Entry, models.Correction, error)
	RecordPayment(ctx context.Context, customerID string, in ledger.PaymentInput) (models.Payment, error)
	Summary(ctx context.Context, customerID string, period billing.Period) (billing.PeriodSummary, error)
	Invoice(ctx context.Context, customerID string, period billing.Period) (billing.InvoiceDocument, error)
	Notifications(ctx context.Context, period billing.Period) (billing.NotificationBatch, error)
	Dispatch(ctx context.Context, period billing.Period) (ledger.DispatchReport, error)
	ExportPeriod(ctx context.Context, period billing.Period) (int, error)
	ArchiveInvoices(ctx context.Context, period billing.Period) (ledger.ArchiveReport, error)
}

// InvoiceRenderer produces printable invoices.
type InvoiceRenderer interface {
	HTML(doc billing.InvoiceDocument) ([]byte, error)
	PDF(ctx context.Context, doc billing.InvoiceDocument) ([]byte, error)
}

// BillingHandler exposes customers, entries, payments, summaries, invoices
// and notification runs.
type BillingHandler struct {
	ledger   Ledger
	renderer InvoiceRenderer
	logger   *zap.Logger
}

// NewBillingHandler constructs the HTTP handler adapter.
func NewBillingHandler(ledger Ledger, renderer InvoiceRenderer, logger *zap.Logger) *BillingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingHandler{ledger: ledger, renderer: renderer, logger: logger}
}

type entryRequest struct {
	Date   string              `json:"date"`
	Milk   []ledger.MilkInput  `json:"milk"`
	Extras []ledger.ExtraInput `json:"extras"`
}

type paymentRequest struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
}

type correctionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type periodRequest struct {
	Month string `json:"month"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// RegisterCustomer creates a customer.
func (h *BillingHandler) RegisterCustomer(c *gin.Context) {
	var req ledger.CustomerInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	customer, err := h.ledger.RegisterCustomer(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, customer)
}

// ListCustomers returns every customer.
func (h *BillingHandler) ListCustomers(c *gin.Context) {
	customers, err := h.ledger.Customers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

// RecordEntry stores a valuated delivery entry.
func (h *BillingHandler) RecordEntry(c *gin.Context) {
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	date, err := parseDate(req.Date, h.ledger.Location())
	if err != nil {
		h.badRequest(c, err.Error(), err)
		return
	}

	entry, err := h.ledger.RecordEntry(c.Request.Context(), c.Param("id"), ledger.EntryInput{
		Date:   date,
		Milk:   req.Milk,
		Extras: req.Extras,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// CorrectEntry re-prices an entry and returns it with its audit record.
func (h *BillingHandler) CorrectEntry(c *gin.Context) {
	var req correctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "reason is required", err)
		return
	}

	entry, correction, err := h.ledger.CorrectEntry(c.Request.Context(), c.Param("id"), c.Param("entryID"), req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entry, "correction": correction})
}

// RecordPayment stores a payment.
func (h *BillingHandler) RecordPayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	date, err := parseDate(req.Date, h.ledger.Location())
	if err != nil {
		h.badRequest(c, err.Error(), err)
		return
	}

	payment, err := h.ledger.RecordPayment(c.Request.Context(), c.Param("id"), ledger.PaymentInput{
		Date:   date,
		Amount: req.Amount,
		Method: req.Method,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, payment)
}

// Summary returns the customer's ledger for ?month= or ?from=&to=, or the
// whole history when neither is given.
func (h *BillingHandler) Summary(c *gin.Context) {
	period, err := billing.ParseSelector(c.Query("month"), c.Query("from"), c.Query("to"), h.ledger.Location())
	if err != nil {
		h.fail(c, err)
		return
	}

	summary, err := h.ledger.Summary(c.Request.Context(), c.Param("id"), period)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Invoice returns the invoice as JSON, HTML or PDF depending on ?format=.
func (h *BillingHandler) Invoice(c *gin.Context) {
	period, err := billing.ParseSelector(c.Query("month"), c.Query("from"), c.Query("to"), h.ledger.Location())
	if err != nil {
		h.fail(c, err)
		return
	}

	doc, err := h.ledger.Invoice(c.Request.Context(), c.Param("id"), period)
	if err != nil {
		h.fail(c, err)
		return
	}

	switch format := strings.ToLower(c.DefaultQuery("format", "json")); format {
	case "json":
		c.JSON(http.StatusOK, doc)
	case "html":
		html, err := h.renderer.HTML(doc)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", html)
	case "pdf":
		pdf, err := h.renderer.PDF(c.Request.Context(), doc)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", "invoice-"+doc.CustomerID+"-"+doc.PeriodLabel+".pdf"))
		c.Data(http.StatusOK, "application/pdf", pdf)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json, html or pdf"})
	}
}

// ManualNotifications returns the period notifications as phone,message CSV
// for sending by hand.
func (h *BillingHandler) ManualNotifications(c *gin.Context) {
	period, ok := h.bindPeriod(c)
	if !ok {
		return
	}

	batch, err := h.ledger.Notifications(c.Request.Context(), period)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	if err := batch.WriteCSV(c.Writer); err != nil {
		h.logger.Error("failed writing notification csv", zap.Error(err))
	}
}

// SendNotifications delivers the period notifications over WhatsApp.
func (h *BillingHandler) SendNotifications(c *gin.Context) {
	period, ok := h.bindPeriod(c)
	if !ok {
		return
	}

	report, err := h.ledger.Dispatch(c.Request.Context(), period)
	if err != nil && report.PeriodLabel != "" {
		h.logger.Warn("notification dispatch had failures", zap.Error(err))
		c.JSON(http.StatusBadGateway, report)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// ExportSheets appends the period billing rows to Google Sheets.
func (h *BillingHandler) ExportSheets(c *gin.Context) {
	period, ok := h.bindPeriod(c)
	if !ok {
		return
	}

	rows, err := h.ledger.ExportPeriod(c.Request.Context(), period)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"period": period.Label, "rows": rows})
}

// ArchiveInvoices stores the period's invoice PDFs in the object store.
func (h *BillingHandler) ArchiveInvoices(c *gin.Context) {
	period, ok := h.bindPeriod(c)
	if !ok {
		return
	}

	report, err := h.ledger.ArchiveInvoices(c.Request.Context(), period)
	if err != nil && report.PeriodLabel != "" {
		h.logger.Warn("invoice archive had failures", zap.Error(err))
		c.JSON(http.StatusBadGateway, report)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *BillingHandler) bindPeriod(c *gin.Context) (billing.Period, bool) {
	var req periodRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(c, "invalid request body", err)
		return billing.Period{}, false
	}

	period, err := billing.ParseSelector(req.Month, req.From, req.To, h.ledger.Location())
	if err != nil {
		h.fail(c, err)
		return billing.Period{}, false
	}
	return period, true
}

func (h *BillingHandler) badRequest(c *gin.Context, message string, err error) {
	h.logger.Warn("invalid billing request", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

func (h *BillingHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("billing request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	c.JSON(status, gin.H{"error": message})
}

func statusFor(err error) int {
	switch {
	case billing.IsValidation(err),
		errors.Is(err, ledger.ErrInvalidPayment),
		errors.Is(err, ledger.ErrInvalidCustomer):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrCustomerNotFound),
		errors.Is(err, ledger.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrDispatchDisabled),
		errors.Is(err, ledger.ErrExportDisabled),
		errors.Is(err, ledger.ErrArchiveDisabled),
		errors.Is(err, render.ErrPDFUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(dateLayout, value, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("date %q must be YYYY-MM-DD or RFC3339", value)
}
