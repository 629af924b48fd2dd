package main

import (
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"

	"estateBack/internal/models"
)

func (app *application) JWTMiddlewareWithRole(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return app.JWTMiddleware(next, requiredRole)
	}
}

func (app *application) routes() http.Handler {
	standardMiddleware := alice.New(app.recoverPanic, app.logRequest, secureHeaders)
	jsonMiddleware := standardMiddleware.Append(makeResponseJSON)
	clientAuthMiddleware := jsonMiddleware.Append(app.JWTMiddlewareWithRole(models.RoleClient))
	paymentMiddleware := clientAuthMiddleware.Append(app.rateLimit)

	mux := pat.New()

	mux.Get("/healthz", jsonMiddleware.ThenFunc(app.healthz))

	// Unlock payments
	mux.Post("/payment/initialize", paymentMiddleware.ThenFunc(app.unlockHandler.Initialize))
	mux.Post("/payment/verify", paymentMiddleware.ThenFunc(app.unlockHandler.Verify))
	mux.Get("/payment/demo-checkout/:reference", standardMiddleware.ThenFunc(app.unlockHandler.DemoCheckout))
	mux.Get("/payment/callback", standardMiddleware.Append(app.optionalAuth).ThenFunc(app.unlockHandler.Callback))
	mux.Get("/payment/history", clientAuthMiddleware.ThenFunc(app.unlockHandler.History))
	mux.Get("/payment/agent/:agent_id/contact", clientAuthMiddleware.ThenFunc(app.unlockHandler.AgentContact))

	// WebSocket
	mux.Get("/ws/unlocks", standardMiddleware.Append(app.JWTMiddlewareWithRole(models.RoleClient)).ThenFunc(app.unlockHub.ServeWS))

	return mux
}

func (app *application) healthz(w http.ResponseWriter, r *http.Request) {
	if app.db != nil {
		if err := app.db.PingContext(r.Context()); err != nil {
			app.clientError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
