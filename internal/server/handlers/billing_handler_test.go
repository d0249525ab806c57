package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/dairy/internal/billing"
	"github.com/mamadbah2/dairy/internal/domain/models"
	"github.com/mamadbah2/dairy/internal/render"
	"github.com/mamadbah2/dairy/internal/service/ledger"
)

type fakeLedger struct {
	entryInput   ledger.EntryInput
	paymentInput ledger.PaymentInput
	period       billing.Period
	err          error
	report       ledger.DispatchReport
	archive      ledger.ArchiveReport
}

func (f *fakeLedger) Location() *time.Location { return time.UTC }

func (f *fakeLedger) RegisterCustomer(_ context.Context, in ledger.CustomerInput) (models.Customer, error) {
	return models.Customer{ID: "c1", Name: in.Name, Phone: in.Phone}, f.err
}

func (f *fakeLedger) Customers(context.Context) ([]models.Customer, error) {
	return []models.Customer{{ID: "c1", Name: "Ramesh"}}, f.err
}

func (f *fakeLedger) RecordEntry(_ context.Context, customerID string, in ledger.EntryInput) (models.Entry, error) {
	f.entryInput = in
	if f.err != nil {
		return models.Entry{}, f.err
	}
	return models.Entry{ID: "e1", CustomerID: customerID, Date: in.Date, Total: decimal.NewFromInt(100)}, nil
}

func (f *fakeLedger) CorrectEntry(_ context.Context, customerID, entryID, reason string) (models.Entry, models.Correction, error) {
	return models.Entry{ID: entryID, CustomerID: customerID}, models.Correction{EntryID: entryID, Reason: reason}, f.err
}

func (f *fakeLedger) RecordPayment(_ context.Context, customerID string, in ledger.PaymentInput) (models.Payment, error) {
	f.paymentInput = in
	return models.Payment{ID: "p1", CustomerID: customerID, Amount: in.Amount}, f.err
}

func (f *fakeLedger) Summary(_ context.Context, customerID string, period billing.Period) (billing.PeriodSummary, error) {
	f.period = period
	return billing.EmptySummary(customerID, period), f.err
}

func (f *fakeLedger) Invoice(_ context.Context, customerID string, period billing.Period) (billing.InvoiceDocument, error) {
	f.period = period
	return billing.InvoiceDocument{CustomerID: customerID, CustomerName: "Ramesh", PeriodLabel: period.Label}, f.err
}

func (f *fakeLedger) Notifications(_ context.Context, period billing.Period) (billing.NotificationBatch, error) {
	f.period = period
	return billing.NotificationBatch{
		PeriodLabel:   period.Label,
		Notifications: []billing.Notification{{CustomerID: "c1", Phone: "919800000001", Message: "Namaste Ramesh, aapka 2024-03 bill 0.00 Rs."}},
	}, f.err
}

func (f *fakeLedger) Dispatch(_ context.Context, period billing.Period) (ledger.DispatchReport, error) {
	f.period = period
	return f.report, f.err
}

func (f *fakeLedger) ExportPeriod(_ context.Context, period billing.Period) (int, error) {
	f.period = period
	return 3, f.err
}

func (f *fakeLedger) ArchiveInvoices(_ context.Context, period billing.Period) (ledger.ArchiveReport, error) {
	f.period = period
	return f.archive, f.err
}

type fakeRenderer struct{ pdfErr error }

func (fakeRenderer) HTML(doc billing.InvoiceDocument) ([]byte, error) {
	return []byte("<h1>" + doc.CustomerName + "</h1>"), nil
}

func (r fakeRenderer) PDF(context.Context, billing.InvoiceDocument) ([]byte, error) {
	if r.pdfErr != nil {
		return nil, r.pdfErr
	}
	return []byte("%PDF"), nil
}

func newBillingEngine(l *fakeLedger, r InvoiceRenderer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewBillingHandler(l, r, nil)

	e := gin.New()
	e.POST("/api/customers", h.RegisterCustomer)
	e.GET("/api/customers", h.ListCustomers)
	e.POST("/api/customers/:id/entries", h.RecordEntry)
	e.POST("/api/customers/:id/entries/:entryID/corrections", h.CorrectEntry)
	e.POST("/api/customers/:id/payments", h.RecordPayment)
	e.GET("/api/customers/:id/summary", h.Summary)
	e.GET("/api/customers/:id/invoice", h.Invoice)
	e.POST("/api/notify/manual", h.ManualNotifications)
	e.POST("/api/notify/send", h.SendNotifications)
	e.POST("/api/export/sheets", h.ExportSheets)
	e.POST("/api/archive/invoices", h.ArchiveInvoices)
	return e
}

func do(e *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func TestRecordEntryHandler(t *testing.T) {
	l := &fakeLedger{}
	e := newBillingEngine(l, fakeRenderer{})

	w := do(e, http.MethodPost, "/api/customers/c1/entries",
		`{"date":"2024-03-02","milk":[{"type":"Cow","qty":"2"}],"extras":[{"name":"Feed","qty":1,"rate":20}]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), l.entryInput.Date)
	require.Len(t, l.entryInput.Milk, 1)
	assert.True(t, decimal.NewFromInt(2).Equal(l.entryInput.Milk[0].Quantity))
	require.Len(t, l.entryInput.Extras, 1)
	assert.True(t, decimal.NewFromInt(20).Equal(l.entryInput.Extras[0].Rate))

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "e1", got["id"])
	assert.Equal(t, "100", got["total"])
}

func TestRecordEntryHandler_BadDate(t *testing.T) {
	e := newBillingEngine(&fakeLedger{}, fakeRenderer{})

	w := do(e, http.MethodPost, "/api/customers/c1/entries", `{"date":"02/03/2024","milk":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unknown milk type", err: &billing.ValidationError{Err: billing.ErrUnknownMilkType, Details: "Goat"}, want: http.StatusBadRequest},
		{name: "invalid payment", err: fmt.Errorf("%w: amount", ledger.ErrInvalidPayment), want: http.StatusBadRequest},
		{name: "customer not found", err: ledger.ErrCustomerNotFound, want: http.StatusNotFound},
		{name: "entry not found", err: ledger.ErrEntryNotFound, want: http.StatusNotFound},
		{name: "export disabled", err: ledger.ErrExportDisabled, want: http.StatusServiceUnavailable},
		{name: "store failure", err: errors.New("mongo down"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newBillingEngine(&fakeLedger{err: tt.err}, fakeRenderer{})
			w := do(e, http.MethodPost, "/api/customers/c1/payments", `{"amount":"10"}`)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "mongo down")
			}
		})
	}
}

func TestCorrectEntryHandler(t *testing.T) {
	e := newBillingEngine(&fakeLedger{}, fakeRenderer{})

	w := do(e, http.MethodPost, "/api/customers/c1/entries/e9/corrections", `{"reason":"rate changed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reason":"rate changed"`)

	w = do(e, http.MethodPost, "/api/customers/c1/entries/e9/corrections", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSummaryHandler_Selectors(t *testing.T) {
	tests := []struct {
		query     string
		wantCode  int
		wantLabel string
	}{
		{query: "?month=2024-03", wantCode: http.StatusOK, wantLabel: "2024-03"},
		{query: "", wantCode: http.StatusOK, wantLabel: "all-time"},
		{query: "?from=2024-03-01&to=2024-03-15", wantCode: http.StatusOK, wantLabel: "2024-03-01 to 2024-03-15"},
		{query: "?month=2024-13", wantCode: http.StatusBadRequest},
		{query: "?month=2024-03&from=2024-03-01", wantCode: http.StatusBadRequest},
		{query: "?from=2024-03-15&to=2024-03-01", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			l := &fakeLedger{}
			e := newBillingEngine(l, fakeRenderer{})

			w := do(e, http.MethodGet, "/api/customers/c1/summary"+tt.query, "")
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, tt.wantLabel, l.period.Label)
				assert.Contains(t, w.Body.String(), `"periodLabel":"`+tt.wantLabel+`"`)
			}
		})
	}
}

func TestInvoiceHandler_Formats(t *testing.T) {
	e := newBillingEngine(&fakeLedger{}, fakeRenderer{})

	w := do(e, http.MethodGet, "/api/customers/c1/invoice?month=2024-03", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	w = do(e, http.MethodGet, "/api/customers/c1/invoice?month=2024-03&format=html", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<h1>Ramesh</h1>", w.Body.String())

	w = do(e, http.MethodGet, "/api/customers/c1/invoice?month=2024-03&format=pdf", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "invoice-c1-2024-03.pdf")

	w = do(e, http.MethodGet, "/api/customers/c1/invoice?format=xml", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	noPDF := newBillingEngine(&fakeLedger{}, fakeRenderer{pdfErr: render.ErrPDFUnavailable})
	w = do(noPDF, http.MethodGet, "/api/customers/c1/invoice?format=pdf", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestManualNotificationsHandler(t *testing.T) {
	l := &fakeLedger{}
	e := newBillingEngine(l, fakeRenderer{})

	w := do(e, http.MethodPost, "/api/notify/manual", `{"month":"2024-03"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "919800000001,\"Namaste Ramesh, aapka 2024-03 bill 0.00 Rs.\"\n", w.Body.String())
	assert.Equal(t, "2024-03", l.period.Label)

	w = do(e, http.MethodPost, "/api/notify/manual", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, l.period.IsAllTime())
}

func TestSendNotificationsHandler(t *testing.T) {
	l := &fakeLedger{report: ledger.DispatchReport{PeriodLabel: "2024-03", Sent: 2}}
	e := newBillingEngine(l, fakeRenderer{})

	w := do(e, http.MethodPost, "/api/notify/send", `{"month":"2024-03"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sent":2`)

	l.err = errors.New("notify customer c3: rate limited")
	w = do(e, http.MethodPost, "/api/notify/send", `{"month":"2024-03"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	disabled := newBillingEngine(&fakeLedger{err: ledger.ErrDispatchDisabled}, fakeRenderer{})
	w = do(disabled, http.MethodPost, "/api/notify/send", `{"month":"2024-03"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestExportSheetsHandler(t *testing.T) {
	e := newBillingEngine(&fakeLedger{}, fakeRenderer{})

	w := do(e, http.MethodPost, "/api/export/sheets", `{"month":"2024-03"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"period":"2024-03","rows":3}`, w.Body.String())
}

func TestArchiveInvoicesHandler(t *testing.T) {
	l := &fakeLedger{archive: ledger.ArchiveReport{PeriodLabel: "2024-03", Stored: []string{"2024-03/c1.pdf"}, Failed: []ledger.ArchiveFailure{}}}
	e := newBillingEngine(l, fakeRenderer{})

	w := do(e, http.MethodPost, "/api/archive/invoices", `{"month":"2024-03"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"period":"2024-03","stored":["2024-03/c1.pdf"],"failed":[]}`, w.Body.String())
	assert.Equal(t, "2024-03", l.period.Label)

	l.err = errors.New("archive customer c2: bucket unavailable")
	w = do(e, http.MethodPost, "/api/archive/invoices", `{"month":"2024-03"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	disabled := newBillingEngine(&fakeLedger{err: ledger.ErrArchiveDisabled}, fakeRenderer{})
	w = do(disabled, http.MethodPost, "/api/archive/invoices", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRegisterCustomerHandler(t *testing.T) {
	e := newBillingEngine(&fakeLedger{}, fakeRenderer{})

	w := do(e, http.MethodPost, "/api/customers", `{"name":"Ramesh","phone":"919800000001"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(e, http.MethodPost, "/api/customers", `{"name":"Ramesh"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(e, http.MethodGet, "/api/customers", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"customers"`)
}
