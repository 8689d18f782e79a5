package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/batchtrack/batchtrack/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestHandlers(t *testing.T) (*Handlers, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	h := &Handlers{
		DB:  db,
		Cfg: &config.Config{},
		Log: zerolog.Nop(),
	}
	return h, mock, func() { db.Close() }
}

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(h *Handlers, provider string, body []byte, signature string) *httptest.ResponseRecorder {
	r := gin.New()
	r.POST("/v1/billing/webhook/:provider", h.BillingWebhook)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/billing/webhook/"+provider, bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestBillingWebhookRejectsUnknownProvider(t *testing.T) {
	h, _, cleanup := newTestHandlers(t)
	defer cleanup()

	w := postWebhook(h, "paypal", []byte(`{"id":"evt_1","type":"x"}`), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBillingWebhookRejectsBadSignature(t *testing.T) {
	h, _, cleanup := newTestHandlers(t)
	defer cleanup()
	h.Cfg.Billing.WebhookSecret = "whsec"

	body := []byte(`{"id":"evt_1","type":"subscription.activated"}`)
	w := postWebhook(h, "stripe", body, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBillingWebhookAcceptsValidSignature(t *testing.T) {
	h, mock, cleanup := newTestHandlers(t)
	defer cleanup()
	h.Cfg.Billing.WebhookSecret = "whsec"

	// No orgId in the event: archived, nothing applied.
	body := []byte(`{"id":"evt_2","type":"ping"}`)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO billing_snapshots").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	w := postWebhook(h, "stripe", body, signBody(body, "whsec"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBillingWebhookDeduplicatesEvents(t *testing.T) {
	h, mock, cleanup := newTestHandlers(t)
	defer cleanup()

	body := []byte(`{"id":"evt_3","type":"subscription.activated","orgId":5}`)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO billing_snapshots").
		WillReturnError(fmt.Errorf("Error 1062: Duplicate entry 'stripe-evt_3' for key 'uq_snapshots_provider_event'"))
	mock.ExpectRollback()

	w := postWebhook(h, "stripe", body, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "already processed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBillingWebhookActivatesSubscription(t *testing.T) {
	h, mock, cleanup := newTestHandlers(t)
	defer cleanup()

	body := []byte(`{"id":"evt_4","type":"subscription.activated","orgId":5,"data":{"tierKey":"team","reference":"sub_abc"}}`)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO billing_snapshots").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT id FROM subscription_tiers").
		WithArgs("team").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectExec("UPDATE org_subscriptions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := postWebhook(h, "stripe", body, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBillingWebhookInsertsSubscriptionWhenNoneExists(t *testing.T) {
	h, mock, cleanup := newTestHandlers(t)
	defer cleanup()

	body := []byte(`{"id":"evt_5","type":"subscription.renewed","orgId":9,"data":{"tierKey":"solo"}}`)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO billing_snapshots").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT id FROM subscription_tiers").
		WithArgs("solo").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("UPDATE org_subscriptions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO org_subscriptions").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	w := postWebhook(h, "stripe", body, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBillingWebhookPaymentFailedMarksPastDue(t *testing.T) {
	h, mock, cleanup := newTestHandlers(t)
	defer cleanup()

	body := []byte(`{"id":"evt_6","type":"subscription.payment_failed","orgId":5}`)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO billing_snapshots").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE org_subscriptions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := postWebhook(h, "whop", body, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"id":"evt"}`)

	assert.True(t, verifyWebhookSignature(body, signBody(body, "s"), "s"))
	assert.True(t, verifyWebhookSignature(body, "sha256="+signBody(body, "s"), "s"), "sha256= prefix is tolerated")
	assert.False(t, verifyWebhookSignature(body, signBody(body, "other"), "s"))
	assert.False(t, verifyWebhookSignature(body, "", "s"))
}
