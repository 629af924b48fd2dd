package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"estateBack/internal/gateway"
	"estateBack/internal/models"
	"estateBack/internal/services"
)

const (
	FlashSuccessCookie = "success_msg"
	FlashErrorCookie   = "error_msg"

	msgVerified         = "Payment verified. Agent contact unlocked."
	msgCallbackVerified = "Payment successful! Agent contact details are now available."
)

// UnlockHandler exposes the agent-contact unlock flow. It only translates
// between HTTP and the services; it holds no state of its own.
type UnlockHandler struct {
	Intents   *services.PaymentIntentService
	Verifier  *services.VerificationService
	Ledger    *services.LedgerService
	Contacts  *services.ContactService
	Dashboard string
	Logger    *slog.Logger
}

type apiResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	AgentPhone string `json:"agentPhone,omitempty"`
	Data       any    `json:"data,omitempty"`
}

func (h *UnlockHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func writeJSON(w http.ResponseWriter, status int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func clientIDFromContext(r *http.Request) int {
	id, _ := r.Context().Value(models.ContextUserID).(int)
	return id
}

// propertyIDField accepts propertyId as a JSON number or a numeric string.
type propertyIDField int

func (p *propertyIDField) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return models.ErrMissingField
	}
	*p = propertyIDField(v)
	return nil
}

// unlockErrorStatus maps the unlock error taxonomy onto HTTP.
func unlockErrorStatus(err error) int {
	switch models.Kind(err) {
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindConflict, models.KindInvalid:
		return http.StatusBadRequest
	case models.KindUpstreamUnconfirmed:
		return http.StatusPaymentRequired
	case models.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// unlockErrorMessage is the caller-facing text; internal details stay in the log.
func unlockErrorMessage(err error, internal string) string {
	switch {
	case errors.Is(err, models.ErrPropertyNotFound):
		return "Property not found"
	case errors.Is(err, models.ErrAgentNotFound):
		return "Agent not found"
	case errors.Is(err, models.ErrClientNotFound):
		return "Client not found"
	case errors.Is(err, models.ErrAgentAlreadyUnlocked):
		return "Agent already unlocked"
	case errors.Is(err, models.ErrReferenceUsed):
		return "Payment reference already used"
	case errors.Is(err, models.ErrMissingField):
		return "Reference and property ID are required"
	case errors.Is(err, models.ErrInvalidReference):
		return "Invalid payment reference"
	case errors.Is(err, models.ErrPaymentNotConfirmed):
		return "Payment not confirmed yet, please try again shortly"
	case errors.Is(err, models.ErrForbidden):
		return "agent contact is locked"
	default:
		return internal
	}
}

func (h *UnlockHandler) fail(w http.ResponseWriter, r *http.Request, err error, internal string) {
	status := unlockErrorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger().Error("unlock request failed", "path", r.URL.Path, "client_id", clientIDFromContext(r), "error", err)
	}
	writeJSON(w, status, apiResponse{Success: false, Error: unlockErrorMessage(err, internal)})
}

// Initialize handles POST /payment/initialize.
func (h *UnlockHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	clientID := clientIDFromContext(r)
	if clientID == 0 {
		writeJSON(w, http.StatusUnauthorized, apiResponse{Error: "unauthorized"})
		return
	}
	var req struct {
		PropertyID propertyIDField `json:"propertyId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: "Property ID is required"})
		return
	}
	if req.PropertyID <= 0 {
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: "Property ID is required"})
		return
	}

	intent, err := h.Intents.Initialize(r.Context(), clientID, int(req.PropertyID))
	if err != nil {
		h.fail(w, r, err, "Payment initialization failed")
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: intent})
}

// Verify handles POST /payment/verify.
func (h *UnlockHandler) Verify(w http.ResponseWriter, r *http.Request) {
	clientID := clientIDFromContext(r)
	if clientID == 0 {
		writeJSON(w, http.StatusUnauthorized, apiResponse{Error: "unauthorized"})
		return
	}
	var req struct {
		Reference  string          `json:"reference"`
		PropertyID propertyIDField `json:"propertyId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: "Reference and property ID are required"})
		return
	}
	if strings.TrimSpace(req.Reference) == "" || req.PropertyID <= 0 {
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: "Reference and property ID are required"})
		return
	}

	out, err := h.Verifier.Verify(r.Context(), req.Reference, int(req.PropertyID), clientID)
	if err != nil {
		h.fail(w, r, err, "Payment verification failed")
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: msgVerified, AgentPhone: out.AgentPhone})
}

// Callback handles the browser returning from the gateway. It always
// redirects to the dashboard with a flash message.
func (h *UnlockHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(getParam(r, "reference"))
	if ref == "" {
		// Paystack appends trxref as well
		ref = strings.TrimSpace(getParam(r, "trxref"))
	}
	propertyID := intParam(r, "propertyId")

	out, err := h.Verifier.HandleCallback(r.Context(), ref, propertyID, clientIDFromContext(r))
	if err != nil {
		if unlockErrorStatus(err) == http.StatusInternalServerError {
			h.logger().Error("payment callback failed", "reference", ref, "error", err)
		}
		h.redirectWithFlash(w, r, FlashErrorCookie, unlockErrorMessage(err, "Payment verification failed"))
		return
	}
	h.logger().Info("payment callback verified", "reference", ref, "agent_id", out.AgentID, "duplicate", out.Duplicate)
	h.redirectWithFlash(w, r, FlashSuccessCookie, msgCallbackVerified)
}

// DemoCheckout plays the hosted checkout page in demo mode: it sends the
// browser straight back to the callback, as a gateway would after payment.
func (h *UnlockHandler) DemoCheckout(w http.ResponseWriter, r *http.Request) {
	if h.Verifier == nil || h.Verifier.Gateway == nil || h.Verifier.Gateway.Mode() != gateway.ModeDemo {
		http.NotFound(w, r)
		return
	}
	ref := strings.TrimSpace(getParam(r, "reference"))
	if ref == "" {
		h.redirectWithFlash(w, r, FlashErrorCookie, unlockErrorMessage(models.ErrMissingField, ""))
		return
	}
	q := url.Values{}
	q.Set("reference", ref)
	q.Set("propertyId", strconv.Itoa(intParam(r, "propertyId")))
	http.Redirect(w, r, "/payment/callback?"+q.Encode(), http.StatusSeeOther)
}

func (h *UnlockHandler) redirectWithFlash(w http.ResponseWriter, r *http.Request, name, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    url.QueryEscape(msg),
		Path:     "/",
		MaxAge:   60,
		Expires:  time.Now().Add(time.Minute),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	dashboard := h.Dashboard
	if dashboard == "" {
		dashboard = "/client/dashboard"
	}
	http.Redirect(w, r, dashboard, http.StatusSeeOther)
}

// History handles GET /payment/history.
func (h *UnlockHandler) History(w http.ResponseWriter, r *http.Request) {
	clientID := clientIDFromContext(r)
	if clientID == 0 {
		writeJSON(w, http.StatusUnauthorized, apiResponse{Error: "unauthorized"})
		return
	}
	history, err := h.Ledger.History(r.Context(), clientID)
	if err != nil {
		h.fail(w, r, err, "Could not load payment history")
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: history})
}

// AgentContact handles GET /payment/agent/:agent_id/contact.
func (h *UnlockHandler) AgentContact(w http.ResponseWriter, r *http.Request) {
	clientID := clientIDFromContext(r)
	if clientID == 0 {
		writeJSON(w, http.StatusUnauthorized, apiResponse{Error: "unauthorized"})
		return
	}
	agentID := intParam(r, "agent_id")
	if agentID == 0 {
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: "invalid agent_id"})
		return
	}
	agent, err := h.Contacts.RevealContact(r.Context(), clientID, agentID)
	if err != nil {
		h.fail(w, r, err, "Could not load agent contact")
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, AgentPhone: agent.Phone, Data: agent})
}
