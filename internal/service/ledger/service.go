package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/dairy/internal/billing"
	"github.com/mamadbah2/dairy/internal/domain/models"
	"github.com/mamadbah2/dairy/internal/repository/mongodb"
)

var (
	// ErrCustomerNotFound is returned when the referenced customer does not exist.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrEntryNotFound is returned when the referenced entry does not exist.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrInvalidPayment is returned for payments without a positive amount.
	ErrInvalidPayment = errors.New("invalid payment")
	// ErrInvalidCustomer is returned when a customer is registered without a name or phone.
	ErrInvalidCustomer = errors.New("invalid customer")
	// ErrDispatchDisabled is returned when no outbound channel is configured.
	ErrDispatchDisabled = errors.New("notification dispatch is not configured")
	// ErrExportDisabled is returned when no billing export is configured.
	ErrExportDisabled = errors.New("billing export is not configured")
)

const (
	defaultPaymentMethod = "cash"
	defaultConcurrency   = 8
	exportDateLayout     = "2006-01-02"
)

// Store is the record store the ledger reads from and writes to.
type Store interface {
	GetCustomer(ctx context.Context, id string) (models.Customer, error)
	FindCustomerByPhone(ctx context.Context, phone string) (models.Customer, error)
	ListCustomers(ctx context.Context) ([]models.Customer, error)
	SaveCustomer(ctx context.Context, customer models.Customer) error
	InsertEntry(ctx context.Context, entry models.Entry) error
	GetEntry(ctx context.Context, id string) (models.Entry, error)
	ListEntries(ctx context.Context, customerID string, rng mongodb.Range) ([]models.Entry, error)
	ApplyCorrection(ctx context.Context, entry models.Entry, correction models.Correction) error
	InsertPayment(ctx context.Context, payment models.Payment) error
	ListPayments(ctx context.Context, customerID string, rng mongodb.Range) ([]models.Payment, error)
}

// Sender delivers a text message to a phone number.
type Sender interface {
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// Exporter appends rows to an external spreadsheet.
type Exporter interface {
	AppendRows(ctx context.Context, sheetRange string, rows [][]interface{}) error
}

// Options tunes the ledger service.
type Options struct {
	// BaseURL prefixes invoice links in notifications.
	BaseURL string
	// Location is the calendar used for month boundaries.
	Location *time.Location
	// Concurrency bounds parallel store reads when summarizing many customers.
	Concurrency int
	// ExportRange is the A1 range billing rows are appended to.
	ExportRange string
	// Archive and Renderer enable ArchiveInvoices when both are set.
	Archive  Archiver
	Renderer PDFRenderer
}

// Service records deliveries and payments and produces summaries, invoices
// and notifications on top of the billing engine.
type Service struct {
	store    Store
	valuator *billing.Valuator
	notifier *billing.NotificationBuilder
	sender   Sender
	exporter Exporter
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewService wires a ledger service. sender and exporter are optional.
func NewService(store Store, rates billing.RateResolver, sender Sender, exporter Exporter, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	return &Service{
		store:    store,
		valuator: billing.NewValuator(rates),
		notifier: billing.NewNotificationBuilder(opts.BaseURL),
		sender:   sender,
		exporter: exporter,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Location returns the calendar the service bills in.
func (s *Service) Location() *time.Location {
	return s.opts.Location
}

// CustomerInput is the payload for registering a customer.
type CustomerInput struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone" binding:"required"`
}

// RegisterCustomer creates a customer record.
func (s *Service) RegisterCustomer(ctx context.Context, in CustomerInput) (models.Customer, error) {
	name := strings.TrimSpace(in.Name)
	phone := NormalizePhone(in.Phone)
	if name == "" || phone == "" {
		return models.Customer{}, fmt.Errorf("%w: name and phone are required", ErrInvalidCustomer)
	}

	customer := models.Customer{
		ID:        s.newID(),
		Name:      name,
		Phone:     phone,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.SaveCustomer(ctx, customer); err != nil {
		return models.Customer{}, fmt.Errorf("save customer: %w", err)
	}

	s.logger.Info("customer registered", zap.String("customer_id", customer.ID))
	return customer, nil
}

// Customers lists every registered customer.
func (s *Service) Customers(ctx context.Context) ([]models.Customer, error) {
	customers, err := s.store.ListCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	if customers == nil {
		customers = []models.Customer{}
	}
	return customers, nil
}

// Customer loads a single customer.
func (s *Service) Customer(ctx context.Context, id string) (models.Customer, error) {
	customer, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return models.Customer{}, notFound(err, ErrCustomerNotFound, "load customer")
	}
	return customer, nil
}

// CustomerByPhone finds the customer registered with the given phone number.
func (s *Service) CustomerByPhone(ctx context.Context, phone string) (models.Customer, error) {
	customer, err := s.store.FindCustomerByPhone(ctx, NormalizePhone(phone))
	if err != nil {
		return models.Customer{}, notFound(err, ErrCustomerNotFound, "find customer by phone")
	}
	return customer, nil
}

// MilkInput is one milk line as submitted.
type MilkInput struct {
	Type     models.MilkType `json:"type"`
	Quantity decimal.Decimal `json:"qty"`
}

// ExtraInput is one extra line as submitted.
type ExtraInput struct {
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"qty"`
	Rate     decimal.Decimal `json:"rate"`
}

// EntryInput is a delivery submission. A zero Date means now.
type EntryInput struct {
	Date   time.Time
	Milk   []MilkInput
	Extras []ExtraInput
}

// RecordEntry valuates and stores a delivery entry. Milk rates always come
// from the rate table; extras carry their own rate.
func (s *Service) RecordEntry(ctx context.Context, customerID string, in EntryInput) (models.Entry, error) {
	if _, err := s.Customer(ctx, customerID); err != nil {
		return models.Entry{}, err
	}

	now := s.now()
	date := in.Date
	if date.IsZero() {
		date = now
	}

	entry := models.Entry{
		ID:         s.newID(),
		CustomerID: customerID,
		Date:       date,
		Milk:       make([]models.MilkLine, 0, len(in.Milk)),
		CreatedAt:  now.UTC(),
	}
	for _, m := range in.Milk {
		entry.Milk = append(entry.Milk, models.MilkLine{Type: m.Type, Quantity: m.Quantity})
	}
	extras := make([]models.ExtraLine, 0, len(in.Extras))
	for _, x := range in.Extras {
		extras = append(extras, models.ExtraLine{Name: x.Name, Quantity: x.Quantity, Rate: x.Rate})
	}
	entry.Extras = billing.FilterExtras(extras)

	valuated, err := s.valuator.Valuate(entry)
	if err != nil {
		return models.Entry{}, err
	}

	if err := s.store.InsertEntry(ctx, valuated); err != nil {
		return models.Entry{}, fmt.Errorf("insert entry: %w", err)
	}

	s.logger.Info("entry recorded",
		zap.String("customer_id", customerID),
		zap.String("entry_id", valuated.ID),
		zap.String("total", billing.FormatAmount(valuated.Total)))

	return valuated, nil
}

// CorrectEntry re-prices an entry at today's rate table and stores the
// updated entry together with its audit record.
func (s *Service) CorrectEntry(ctx context.Context, customerID, entryID, reason string) (models.Entry, models.Correction, error) {
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return models.Entry{}, models.Correction{}, notFound(err, ErrEntryNotFound, "load entry")
	}
	if entry.CustomerID != customerID {
		return models.Entry{}, models.Correction{}, ErrEntryNotFound
	}

	updated, correction, err := s.valuator.Revaluate(entry, reason)
	if err != nil {
		return models.Entry{}, models.Correction{}, err
	}
	correction.ID = s.newID()

	if err := s.store.ApplyCorrection(ctx, updated, correction); err != nil {
		return models.Entry{}, models.Correction{}, fmt.Errorf("apply correction: %w", err)
	}

	s.logger.Info("entry corrected",
		zap.String("entry_id", entryID),
		zap.String("previous_total", billing.FormatAmount(correction.PreviousTotal)),
		zap.String("new_total", billing.FormatAmount(correction.NewTotal)))

	return updated, correction, nil
}

// PaymentInput is a payment submission. A zero Date means now.
type PaymentInput struct {
	Date   time.Time
	Amount decimal.Decimal
	Method string
}

// RecordPayment stores a payment against the customer.
func (s *Service) RecordPayment(ctx context.Context, customerID string, in PaymentInput) (models.Payment, error) {
	if !in.Amount.IsPositive() {
		return models.Payment{}, fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}
	if _, err := s.Customer(ctx, customerID); err != nil {
		return models.Payment{}, err
	}

	now := s.now()
	payment := models.Payment{
		ID:         s.newID(),
		CustomerID: customerID,
		Date:       in.Date,
		Amount:     billing.RoundCurrency(in.Amount),
		Method:     strings.ToLower(strings.TrimSpace(in.Method)),
		CreatedAt:  now.UTC(),
	}
	if payment.Date.IsZero() {
		payment.Date = now
	}
	if payment.Method == "" {
		payment.Method = defaultPaymentMethod
	}

	if err := s.store.InsertPayment(ctx, payment); err != nil {
		return models.Payment{}, fmt.Errorf("insert payment: %w", err)
	}

	s.logger.Info("payment recorded",
		zap.String("customer_id", customerID),
		zap.String("payment_id", payment.ID),
		zap.String("amount", billing.FormatAmount(payment.Amount)))

	return payment, nil
}

// Summary aggregates a customer's ledger over the period.
func (s *Service) Summary(ctx context.Context, customerID string, period billing.Period) (billing.PeriodSummary, error) {
	if _, err := s.Customer(ctx, customerID); err != nil {
		return billing.PeriodSummary{}, err
	}
	return s.summarize(ctx, customerID, period)
}

// Invoice builds the invoice document for a customer and period.
func (s *Service) Invoice(ctx context.Context, customerID string, period billing.Period) (billing.InvoiceDocument, error) {
	customer, err := s.Customer(ctx, customerID)
	if err != nil {
		return billing.InvoiceDocument{}, err
	}

	summary, err := s.summarize(ctx, customerID, period)
	if err != nil {
		return billing.InvoiceDocument{}, err
	}

	return billing.BuildInvoice(customer, summary, s.opts.Location)
}

// Notification builds the period message for a single customer.
func (s *Service) Notification(ctx context.Context, customer models.Customer, period billing.Period) (billing.Notification, error) {
	summary, err := s.summarize(ctx, customer.ID, period)
	if err != nil {
		return billing.Notification{}, err
	}
	return s.notifier.Message(customer, summary), nil
}

// Notifications builds one message per customer for the period, in the
// store's customer order.
func (s *Service) Notifications(ctx context.Context, period billing.Period) (billing.NotificationBatch, error) {
	customers, err := s.Customers(ctx)
	if err != nil {
		return billing.NotificationBatch{}, err
	}

	summaries, err := s.summarizeAll(ctx, customers, period)
	if err != nil {
		return billing.NotificationBatch{}, err
	}

	byCustomer := make(map[string]billing.PeriodSummary, len(summaries))
	for _, summary := range summaries {
		byCustomer[summary.CustomerID] = summary
	}

	return s.notifier.Build(period, customers, func(customerID string) (billing.PeriodSummary, bool) {
		summary, ok := byCustomer[customerID]
		return summary, ok
	}), nil
}

// DispatchFailure records a notification that could not be delivered.
type DispatchFailure struct {
	CustomerID string `json:"customerId"`
	Phone      string `json:"phone"`
	Error      string `json:"error"`
}

// DispatchReport summarizes a notification run.
type DispatchReport struct {
	PeriodLabel string            `json:"period"`
	Sent        int               `json:"sent"`
	Skipped     int               `json:"skipped"`
	Failed      []DispatchFailure `json:"failed"`
}

// Dispatch builds the period notifications and sends each one through the
// configured sender. Delivery failures do not stop the run; they are
// reported and combined into the returned error.
func (s *Service) Dispatch(ctx context.Context, period billing.Period) (DispatchReport, error) {
	if s.sender == nil {
		return DispatchReport{}, ErrDispatchDisabled
	}

	batch, err := s.Notifications(ctx, period)
	if err != nil {
		return DispatchReport{}, err
	}

	report := DispatchReport{PeriodLabel: batch.PeriodLabel, Failed: []DispatchFailure{}}
	var errs error

	for _, n := range batch.Notifications {
		if n.Phone == "" {
			s.logger.Warn("customer has no phone, skipping notification", zap.String("customer_id", n.CustomerID))
			report.Skipped++
			continue
		}

		err := s.sender.SendOutbound(ctx, models.OutboundMessageRequest{To: n.Phone, Message: n.Message})
		if err != nil {
			s.logger.Error("failed to send notification", zap.String("customer_id", n.CustomerID), zap.Error(err))
			report.Failed = append(report.Failed, DispatchFailure{CustomerID: n.CustomerID, Phone: n.Phone, Error: err.Error()})
			errs = multierr.Append(errs, fmt.Errorf("notify customer %s: %w", n.CustomerID, err))
			continue
		}
		report.Sent++
	}

	s.logger.Info("notifications dispatched",
		zap.String("period", report.PeriodLabel),
		zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", len(report.Failed)))

	return report, errs
}

// ExportPeriod appends one billing row per customer to the spreadsheet and
// returns how many rows were written.
func (s *Service) ExportPeriod(ctx context.Context, period billing.Period) (int, error) {
	if s.exporter == nil {
		return 0, ErrExportDisabled
	}

	customers, err := s.Customers(ctx)
	if err != nil {
		return 0, err
	}

	summaries, err := s.summarizeAll(ctx, customers, period)
	if err != nil {
		return 0, err
	}

	exportedAt := s.now().In(s.opts.Location).Format(exportDateLayout)
	rows := make([][]interface{}, 0, len(customers))
	for i, customer := range customers {
		summary := summaries[i]
		rows = append(rows, []interface{}{
			exportedAt,
			summary.PeriodLabel,
			customer.Name,
			customer.Phone,
			billing.FormatAmount(summary.TotalCharges),
			billing.FormatAmount(summary.TotalPaid),
			billing.FormatAmount(summary.Due),
		})
	}

	if len(rows) == 0 {
		return 0, nil
	}

	if err := s.exporter.AppendRows(ctx, s.opts.ExportRange, rows); err != nil {
		return 0, fmt.Errorf("export billing rows: %w", err)
	}

	s.logger.Info("billing exported", zap.String("period", period.Label), zap.Int("rows", len(rows)))
	return len(rows), nil
}

func (s *Service) summarize(ctx context.Context, customerID string, period billing.Period) (billing.PeriodSummary, error) {
	rng := mongodb.Range{From: period.Start, To: period.End}

	entries, err := s.store.ListEntries(ctx, customerID, rng)
	if err != nil {
		return billing.PeriodSummary{}, fmt.Errorf("list entries: %w", err)
	}

	payments, err := s.store.ListPayments(ctx, customerID, rng)
	if err != nil {
		return billing.PeriodSummary{}, fmt.Errorf("list payments: %w", err)
	}

	return billing.Aggregate(customerID, period, entries, payments), nil
}

// summarizeAll fetches every customer's summary with bounded concurrency.
// Results are index-aligned with customers.
func (s *Service) summarizeAll(ctx context.Context, customers []models.Customer, period billing.Period) ([]billing.PeriodSummary, error) {
	out := make([]billing.PeriodSummary, len(customers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	for i, customer := range customers {
		i, customer := i, customer
		g.Go(func() error {
			summary, err := s.summarize(gctx, customer.ID, period)
			if err != nil {
				return fmt.Errorf("summarize customer %s: %w", customer.ID, err)
			}
			out[i] = summary
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// NormalizePhone strips spacing and the leading plus sign so numbers match
// the format WhatsApp reports for inbound messages.
func NormalizePhone(phone string) string {
	phone = strings.Join(strings.Fields(phone), "")
	phone = strings.ReplaceAll(phone, "-", "")
	return strings.TrimPrefix(phone, "+")
}

func notFound(err, sentinel error, action string) error {
	if errors.Is(err, mongodb.ErrNotFound) {
		return sentinel
	}
	return fmt.Errorf("%s: %w", action, err)
}
