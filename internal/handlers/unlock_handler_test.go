package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"estateBack/internal/gateway"
	"estateBack/internal/lock"
	"estateBack/internal/models"
	"estateBack/internal/reference"
	"estateBack/internal/repositories"
	"estateBack/internal/services"
)

type statusGateway struct {
	*gateway.Demo
	status models.PaymentStatus
}

func (g statusGateway) QueryStatus(context.Context, string) (models.PaymentStatus, error) {
	return g.status, nil
}

func newTestHandler(t *testing.T, gw gateway.Gateway) (*UnlockHandler, *repositories.MemoryStore, *reference.Generator) {
	t.Helper()
	store := repositories.NewMemoryStore()
	store.AddProperty(models.Property{ID: 10, Title: "Flat", Agent: models.Agent{ID: 20, Name: "Agent", Phone: "+2348011111111"}})
	if err := store.SaveClient(context.Background(), models.Client{ID: 1, Email: "c@example.com"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if gw == nil {
		gw = gateway.NewDemo("")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	refs := reference.NewGenerator("")
	ledger := services.NewLedgerService(store, lock.NewKeyedMutex())
	fee := decimal.RequireFromString("5000")

	h := &UnlockHandler{
		Intents: &services.PaymentIntentService{
			Properties: store, Clients: store, Ledger: ledger, Gateway: gw, References: refs,
			Fee: fee, Currency: "NGN", Logger: logger,
		},
		Verifier: &services.VerificationService{
			Properties: store, Ledger: ledger, Gateway: gw, References: refs,
			Fee: fee, Currency: "NGN", Timeout: time.Second, Logger: logger,
		},
		Ledger:    ledger,
		Contacts:  &services.ContactService{Properties: store, Ledger: ledger},
		Dashboard: "/client/dashboard",
		Logger:    logger,
	}
	return h, store, refs
}

func asClient(r *http.Request, id int) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), models.ContextUserID, id))
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return body
}

func post(h http.HandlerFunc, path, body string, clientID int) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	if clientID != 0 {
		req = asClient(req, clientID)
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestInitializeAndVerify(t *testing.T) {
	h, store, _ := newTestHandler(t, nil)

	rr := post(h.Initialize, "/payment/initialize", `{"propertyId":10}`, 1)
	if rr.Code != http.StatusOK {
		t.Fatalf("initialize: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	data, _ := body["data"].(map[string]any)
	ref, _ := data["reference"].(string)
	if body["success"] != true || ref == "" || data["accessCode"] != gateway.DemoAccessCode || data["authorizationUrl"] == "" {
		t.Fatalf("unexpected initialize body %v", body)
	}

	rr = post(h.Verify, "/payment/verify", `{"reference":"`+ref+`","propertyId":"10"}`, 1)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	body = decode(t, rr)
	if body["success"] != true || body["agentPhone"] != "+2348011111111" || body["message"] == "" {
		t.Fatalf("unexpected verify body %v", body)
	}

	rr = post(h.Verify, "/payment/verify", `{"reference":"`+ref+`","propertyId":10}`, 1)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("second verify: expected 400, got %d", rr.Code)
	}
	if body := decode(t, rr); body["success"] != false || body["error"] != "Agent already unlocked" {
		t.Fatalf("unexpected body %v", body)
	}
	if h, _ := store.ListHistory(context.Background(), 1); len(h) != 1 {
		t.Fatalf("expected one record, got %d", len(h))
	}

	rr = post(h.Initialize, "/payment/initialize", `{"propertyId":10}`, 1)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("initialize after unlock: expected 400, got %d", rr.Code)
	}
}

func TestInitialize_Errors(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	tests := []struct {
		name     string
		body     string
		clientID int
		status   int
	}{
		{"unauthenticated", `{"propertyId":10}`, 0, http.StatusUnauthorized},
		{"missing property", `{}`, 1, http.StatusBadRequest},
		{"bad json", `{`, 1, http.StatusBadRequest},
		{"unknown property", `{"propertyId":99}`, 1, http.StatusNotFound},
		{"unknown client", `{"propertyId":10}`, 5, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := post(h.Initialize, "/payment/initialize", tt.body, tt.clientID)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d %s", tt.status, rr.Code, rr.Body.String())
			}
			if body := decode(t, rr); body["success"] != false || body["error"] == "" {
				t.Fatalf("unexpected body %v", body)
			}
		})
	}
}

func TestVerify_Errors(t *testing.T) {
	h, store, refs := newTestHandler(t, statusGateway{Demo: gateway.NewDemo(""), status: models.PaymentPending})
	valid := refs.Generate(1)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"missing reference", `{"propertyId":10}`, http.StatusBadRequest},
		{"bad reference", `{"reference":"bad","propertyId":10}`, http.StatusBadRequest},
		{"unknown property", `{"reference":"` + valid + `","propertyId":99}`, http.StatusNotFound},
		{"pending payment", `{"reference":"` + valid + `","propertyId":10}`, http.StatusPaymentRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := post(h.Verify, "/payment/verify", tt.body, 1)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d %s", tt.status, rr.Code, rr.Body.String())
			}
		})
	}
	if ok, _ := store.IsUnlocked(context.Background(), 1, 20); ok {
		t.Fatal("failed verifications must not unlock")
	}
}

func TestCallback_RedirectsWithFlash(t *testing.T) {
	h, store, refs := newTestHandler(t, nil)

	ref := refs.Generate(1)
	req := httptest.NewRequest(http.MethodGet, "/payment/callback?reference="+url.QueryEscape(ref)+"&propertyId=10", nil)
	rr := httptest.NewRecorder()
	h.Callback(rr, req)

	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/client/dashboard" {
		t.Fatalf("expected redirect to dashboard, got %d %q", rr.Code, rr.Header().Get("Location"))
	}
	if !hasCookie(rr, FlashSuccessCookie) {
		t.Fatalf("expected success flash, got %v", rr.Header()["Set-Cookie"])
	}
	if ok, _ := store.IsUnlocked(context.Background(), 1, 20); !ok {
		t.Fatal("callback should commit the unlock")
	}

	rr = httptest.NewRecorder()
	h.Callback(rr, httptest.NewRequest(http.MethodGet, "/payment/callback?reference=bad&propertyId=10", nil))
	if rr.Code != http.StatusSeeOther || !hasCookie(rr, FlashErrorCookie) {
		t.Fatalf("invalid callback must redirect with an error flash, got %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Set-Cookie"), url.QueryEscape("Invalid payment reference")) {
		t.Fatalf("unexpected flash %q", rr.Header().Get("Set-Cookie"))
	}
}

func TestVerify_ReusedReferenceForOtherPropertyIsRejected(t *testing.T) {
	h, store, refs := newTestHandler(t, nil)
	store.AddProperty(models.Property{ID: 11, Title: "Duplex", Agent: models.Agent{ID: 21, Phone: "+2348022222222"}})

	ref := refs.Generate(1)
	if rr := post(h.Verify, "/payment/verify", `{"reference":"`+ref+`","propertyId":10}`, 1); rr.Code != http.StatusOK {
		t.Fatalf("first verify: %d %s", rr.Code, rr.Body.String())
	}

	rr := post(h.Verify, "/payment/verify", `{"reference":"`+ref+`","propertyId":11}`, 1)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	if body["error"] != "Payment reference already used" {
		t.Fatalf("unexpected error %v", body["error"])
	}
	if _, leaked := body["agentPhone"]; leaked {
		t.Fatalf("agent phone must not be returned: %s", rr.Body.String())
	}
	if ok, _ := store.IsUnlocked(context.Background(), 1, 21); ok {
		t.Fatal("agent 21 must stay locked")
	}
}

func TestCallback_MissingPropertyRedirectsWithError(t *testing.T) {
	h, store, refs := newTestHandler(t, nil)
	rr := httptest.NewRecorder()
	h.Callback(rr, httptest.NewRequest(http.MethodGet, "/payment/callback?trxref="+refs.Generate(1), nil))
	if rr.Code != http.StatusSeeOther || !hasCookie(rr, FlashErrorCookie) {
		t.Fatalf("expected error redirect, got %d", rr.Code)
	}
	if ok, _ := store.IsUnlocked(context.Background(), 1, 20); ok {
		t.Fatal("no unlock without property id")
	}
}

func TestDemoCheckout(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)

	rr := httptest.NewRecorder()
	h.DemoCheckout(rr, httptest.NewRequest(http.MethodGet, "/payment/demo-checkout/unlock_1_1?:reference=unlock_1_1&propertyId=10", nil))
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/payment/callback?propertyId=10&reference=unlock_1_1" {
		t.Fatalf("unexpected location %q", loc)
	}

	live, _, _ := newTestHandler(t, liveGateway{statusGateway{Demo: gateway.NewDemo("")}})
	rr = httptest.NewRecorder()
	live.DemoCheckout(rr, httptest.NewRequest(http.MethodGet, "/payment/demo-checkout/unlock_1_1?:reference=unlock_1_1", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("demo checkout must not exist outside demo mode, got %d", rr.Code)
	}
}

type liveGateway struct{ statusGateway }

func (liveGateway) Mode() string { return gateway.ModeLive }

func hasCookie(rr *httptest.ResponseRecorder, name string) bool {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name && c.Value != "" {
			return true
		}
	}
	return false
}

func TestHistoryAndAgentContact(t *testing.T) {
	h, _, refs := newTestHandler(t, nil)

	contact := func() *httptest.ResponseRecorder {
		req := asClient(httptest.NewRequest(http.MethodGet, "/payment/agent/20/contact?:agent_id=20", nil), 1)
		rr := httptest.NewRecorder()
		h.AgentContact(rr, req)
		return rr
	}
	if rr := contact(); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 before unlock, got %d", rr.Code)
	}

	rr := post(h.Verify, "/payment/verify", `{"reference":"`+refs.Generate(1)+`","propertyId":10}`, 1)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify: %d %s", rr.Code, rr.Body.String())
	}

	rr = contact()
	if rr.Code != http.StatusOK || decode(t, rr)["agentPhone"] != "+2348011111111" {
		t.Fatalf("expected contact, got %d %s", rr.Code, rr.Body.String())
	}

	req := asClient(httptest.NewRequest(http.MethodGet, "/payment/agent/404/contact?:agent_id=404", nil), 1)
	rr = httptest.NewRecorder()
	h.AgentContact(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown agent, got %d", rr.Code)
	}

	req = asClient(httptest.NewRequest(http.MethodGet, "/payment/history", nil), 1)
	rr = httptest.NewRecorder()
	h.History(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("history: %d", rr.Code)
	}
	var body struct {
		Data models.UnlockHistory `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data.UnlockedAgents) != 1 || len(body.Data.PaymentHistory) != 1 {
		t.Fatalf("unexpected history %+v", body.Data)
	}
}

func TestUnlockErrorStatus(t *testing.T) {
	cases := map[error]int{
		models.ErrPropertyNotFound:     http.StatusNotFound,
		models.ErrAgentAlreadyUnlocked: http.StatusBadRequest,
		models.ErrReferenceUsed:        http.StatusBadRequest,
		models.ErrInvalidReference:     http.StatusBadRequest,
		models.ErrPaymentNotConfirmed:  http.StatusPaymentRequired,
		models.ErrForbidden:            http.StatusForbidden,
		io.ErrUnexpectedEOF:            http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := unlockErrorStatus(err); got != want {
			t.Errorf("%v: expected %d, got %d", err, want, got)
		}
	}
	if msg := unlockErrorMessage(io.ErrUnexpectedEOF, "Payment verification failed"); msg != "Payment verification failed" {
		t.Errorf("internal errors must not leak, got %q", msg)
	}
}
