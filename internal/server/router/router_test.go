package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/dairy/internal/auth"
	"github.com/mamadbah2/dairy/internal/config"
	"github.com/mamadbah2/dairy/internal/domain/models"
	"github.com/mamadbah2/dairy/internal/server/handlers"
	whatsappsvc "github.com/mamadbah2/dairy/internal/service/whatsapp"
	client "github.com/mamadbah2/dairy/pkg/clients/whatsapp"
)

type nopClient struct{}

func (nopClient) SendTextMessage(context.Context, client.SendTextMessageRequest) (*client.SendTextMessageResponse, error) {
	return &client.SendTextMessageResponse{}, nil
}

type nopDispatcher struct{}

func (nopDispatcher) HandleCommand(context.Context, models.Command, string) (string, error) {
	return "", nil
}

func serve(e *gin.Engine, method, target string) int {
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w.Code
}

func TestRouter_Healthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	e := New(handlers.NewBillingHandler(nil, nil, nil), nil, nil, nil)

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/healthz"))
}

func TestRouter_WhatsAppRoutesOptional(t *testing.T) {
	gin.SetMode(gin.TestMode)
	billing := handlers.NewBillingHandler(nil, nil, nil)

	without := New(billing, nil, nil, nil)
	assert.Equal(t, http.StatusNotFound, serve(without, http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=t&hub.challenge=1"))

	svc := whatsappsvc.NewMetaWhatsAppService(config.WhatsAppConfig{VerifyToken: "t"}, nopClient{}, nopDispatcher{}, nil)
	with := New(billing, handlers.NewWebhookHandler(svc, nil), nil, nil)

	w := httptest.NewRecorder()
	with.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=t&hub.challenge=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Body.String())
}

func TestRouter_ExposesBillingRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	e := New(handlers.NewBillingHandler(nil, nil, nil), nil, nil, nil)

	routes := map[string]bool{}
	for _, r := range e.Routes() {
		routes[r.Method+" "+r.Path] = true
	}

	for _, want := range []string{
		"POST /api/customers",
		"GET /api/customers",
		"POST /api/customers/:id/entries",
		"POST /api/customers/:id/entries/:entryID/corrections",
		"POST /api/customers/:id/payments",
		"GET /api/customers/:id/summary",
		"GET /api/customers/:id/invoice",
		"POST /api/notify/manual",
		"POST /api/notify/send",
		"POST /api/export/sheets",
		"POST /api/archive/invoices",
	} {
		assert.True(t, routes[want], want)
	}
}

func TestRouter_AdminAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens, err := auth.NewTokenService("s3cret", time.Hour)
	require.NoError(t, err)
	admin, err := tokens.Issue("owner", auth.RoleAdmin)
	require.NoError(t, err)
	viewer, err := tokens.Issue("helper", "viewer")
	require.NoError(t, err)

	e := New(handlers.NewBillingHandler(nil, nil, nil), nil, tokens, nil)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "no header", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong role", header: "Bearer " + viewer, want: http.StatusForbidden},
		// Reaches the handler, which rejects the empty body.
		{name: "admin", header: "Bearer " + admin, want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/customers", strings.NewReader("{}"))
			req.Header.Set("Content-Type", "application/json")
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			e.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRouter_CustomerMessagesRequireAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens, err := auth.NewTokenService("s3cret", time.Hour)
	require.NoError(t, err)
	admin, err := tokens.Issue("owner", auth.RoleAdmin)
	require.NoError(t, err)

	svc := whatsappsvc.NewMetaWhatsAppService(config.WhatsAppConfig{VerifyToken: "t"}, nopClient{}, nopDispatcher{}, nil)
	e := New(handlers.NewBillingHandler(nil, nil, nil), handlers.NewWebhookHandler(svc, nil), tokens, nil)

	body := `{"to":"919800000001","message":"Payment reminder"}`
	send := func(header string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		e.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, send(""))
	assert.Equal(t, http.StatusAccepted, send("Bearer "+admin))
	assert.Equal(t, http.StatusNotFound, serve(e, http.MethodPost, "/send-message"))
}
