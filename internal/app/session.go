package app

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"solchat/internal/auth"
	"solchat/internal/store"
	"solchat/pkg/models"
)

// sessionCookie carries the session JWT for browser clients; API clients
// may send it as a bearer token instead.
const sessionCookie = "solchat_session"

// tokenFromRequest extracts the session token from the Authorization
// header or the session cookie.
func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(strings.TrimPrefix(header, "Bearer "), "Bearer: ")
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// currentAccount resolves the request's account from a valid session
// token. It does not create one.
func (a *App) currentAccount(r *http.Request) (*models.Account, error) {
	token := tokenFromRequest(r)
	if token == "" {
		return nil, auth.ErrInvalidToken
	}

	session, err := auth.ValidateSessionToken(token, a.secret)
	if err != nil {
		return nil, err
	}
	return a.store.GetAccount(r.Context(), session.AccountID)
}

// ensureAccount resolves the request's account, minting a guest account
// and session cookie when none exists yet. Guests can hold wallets and
// credits without registering.
func (a *App) ensureAccount(w http.ResponseWriter, r *http.Request) (*models.Account, error) {
	account, err := a.currentAccount(r)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrTokenExpired) && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	guest := &models.Account{
		ID:        uuid.New().String(),
		Kind:      models.OwnerGuest,
		CreatedAt: time.Now(),
	}
	if err := a.store.CreateAccount(r.Context(), guest); err != nil {
		return nil, err
	}

	token, err := auth.CreateSessionToken(guest.ID, guest.Kind, a.secret)
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(auth.TokenLifetime),
	})

	return guest, nil
}
