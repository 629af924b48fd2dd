package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"estateBack/internal/models"
)

func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

func makeResponseJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func (app *application) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app.infoLog.Printf("%s - %s %s %s", r.RemoteAddr, r.Proto, r.Method, r.URL.RequestURI())
		next.ServeHTTP(w, r)
	})
}

func (app *application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")
				app.serverError(w, fmt.Errorf("%s", err))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	if c, err := r.Cookie("token"); err == nil {
		return c.Value
	}
	return ""
}

func withIdentity(r *http.Request, claims *models.Claims) *http.Request {
	ctx := context.WithValue(r.Context(), models.ContextUserID, int(claims.UserID))
	ctx = context.WithValue(ctx, models.ContextRole, claims.Role)
	return r.WithContext(ctx)
}

func (app *application) JWTMiddleware(next http.Handler, requiredRole string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken := bearerToken(r)
		if accessToken == "" {
			app.clientError(w, http.StatusUnauthorized, "Authorization header missing or invalid")
			return
		}
		claims, err := app.tokens.Parse(accessToken)
		if err != nil {
			app.clientError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		switch requiredRole {
		case models.RoleAdmin:
			if claims.Role != models.RoleAdmin {
				app.clientError(w, http.StatusForbidden, "Forbidden: only admins allowed")
				return
			}
		case models.RoleClient:
			if claims.Role != models.RoleClient && claims.Role != models.RoleAdmin {
				app.clientError(w, http.StatusForbidden, "Forbidden: only clients or admins allowed")
				return
			}
		}

		next.ServeHTTP(w, withIdentity(r, claims))
	})
}

// optionalAuth attaches the identity when a valid token is present and
// passes the request through untouched otherwise.
func (app *application) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := bearerToken(r); tok != "" {
			if claims, err := app.tokens.Parse(tok); err == nil {
				r = withIdentity(r, claims)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit throttles payment calls per authenticated client.
func (app *application) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := r.Context().Value(models.ContextUserID).(int)
		if ok, wait := app.limiter.Allow(id, time.Now()); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			app.clientError(w, http.StatusTooManyRequests, "Too many payment requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
