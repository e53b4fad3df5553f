package authtest

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/authapi"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/users"
)

const contentTypeJSON = "application/json; charset=utf-8"

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var loginRequest authapi.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&loginRequest); err != nil {
		writeJSONError(w, "invalid_request", "failed to parse request body", http.StatusBadRequest)
		return
	}

	s.lock.Lock()
	user, exists := s.accounts[loginRequest.Email]
	if !exists || !users.CheckPasswordHash(loginRequest.Password, user.PasswordHash) {
		s.lock.Unlock()
		writeJSONError(w, "invalid_credentials", "email or password incorrect", http.StatusUnauthorized)
		return
	}
	if !user.Active() {
		s.lock.Unlock()
		writeJSONError(w, "account_suspended", "account is not active", http.StatusUnauthorized)
		return
	}
	user.LastLoginAt = s.nowTime()
	profile := *user
	s.lock.Unlock()

	accessToken, _, err := s.mintAccessToken(&profile, s.accessTokenTTL)
	if err != nil {
		writeJSONError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	refreshToken, err := s.newRefreshSession(&profile, "")
	if err != nil {
		writeJSONError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	s.setRefreshCookie(w, r, refreshToken)

	writeJSON(w, http.StatusOK, authapi.TokenResponse{
		AccessToken: utils.Ptr(accessToken),
		TokenType:   "bearer",
		ExpiresIn:   int(s.accessTokenTTL.Seconds()),
		User:        &profile,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var registerRequest authapi.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&registerRequest); err != nil {
		writeJSONError(w, "invalid_request", "failed to parse request body", http.StatusBadRequest)
		return
	}

	if !strings.Contains(registerRequest.Email, "@") {
		writeJSONError(w, "invalid_request", "a valid email address is required", http.StatusBadRequest)
		return
	}
	if err := users.ValidatePasswordStrength(registerRequest.Password); err != nil {
		writeJSONError(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	passwordHash, err := users.HashPassword(registerRequest.Password)
	if err != nil {
		writeJSONError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}

	user := &users.User{
		ID:           uuid.New().String(),
		Email:        registerRequest.Email,
		DisplayName:  registerRequest.FullName,
		PasswordHash: passwordHash,
		Role:         users.RoleAgent,
		Status:       users.StatusActive,
		CreatedAt:    s.nowTime(),
		LastLoginAt:  s.nowTime(),
	}

	s.lock.Lock()
	if _, exists := s.accounts[registerRequest.Email]; exists {
		s.lock.Unlock()
		writeJSONError(w, "email_taken", "email already registered", http.StatusConflict)
		return
	}
	s.accounts[user.Email] = user
	s.accountIDs[user.ID] = user.Email
	profile := *user
	s.lock.Unlock()

	accessToken, _, err := s.mintAccessToken(&profile, s.accessTokenTTL)
	if err != nil {
		writeJSONError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	refreshToken, err := s.newRefreshSession(&profile, "")
	if err != nil {
		writeJSONError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	s.setRefreshCookie(w, r, refreshToken)

	// The register response carries no embedded profile, only the new
	// account's ID - clients synthesize a minimal profile if the follow-up
	// profile fetch fails.
	writeJSON(w, http.StatusCreated, authapi.TokenResponse{
		AccessToken:  utils.Ptr(accessToken),
		TokenType:    "bearer",
		ExpiresIn:    int(s.accessTokenTTL.Seconds()),
		RefreshToken: utils.Ptr(refreshToken),
		UserID:       profile.ID,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.lock.RLock()
	delay := s.refreshDelay
	s.lock.RUnlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	cookie, err := r.Cookie(RefreshTokenCookie)
	if err != nil || cookie.Value == "" {
		writeJSONError(w, "invalid_grant", "no refresh credential", http.StatusUnauthorized)
		return
	}

	s.lock.Lock()
	if s.failRefresh {
		s.lock.Unlock()
		writeJSONError(w, "invalid_grant", "refresh rejected", http.StatusUnauthorized)
		return
	}
	session, exists := s.sessions[cookie.Value]
	if !exists || s.nowTime().After(session.ExpiresAt) {
		delete(s.sessions, cookie.Value)
		s.lock.Unlock()
		writeJSONError(w, "invalid_grant", "refresh credential expired", http.StatusUnauthorized)
		return
	}
	email := s.accountIDs[session.UserID]
	user := *s.accounts[email]
	s.lock.Unlock()

	accessToken, _, err := s.mintAccessToken(&user, s.accessTokenTTL)
	if err != nil {
		writeJSONError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}

	// Rotate the refresh credential on every use
	rotatedToken, err := s.newRefreshSession(&user, cookie.Value)
	if err != nil {
		writeJSONError(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}
	s.setRefreshCookie(w, r, rotatedToken)

	writeJSON(w, http.StatusOK, authapi.TokenResponse{
		AccessToken: utils.Ptr(accessToken),
		TokenType:   "bearer",
		ExpiresIn:   int(s.accessTokenTTL.Seconds()),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.lock.RLock()
	failMe := s.failMe
	delay := s.meDelay
	s.lock.RUnlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if failMe {
		writeJSONError(w, "internal_error", "profile service unavailable", http.StatusInternalServerError)
		return
	}

	user, _, err := s.authenticate(r)
	if err != nil {
		writeJSONError(w, "invalid_token", err.Error(), http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user, jti, err := s.authenticate(r)
	if err != nil {
		writeJSONError(w, "invalid_token", err.Error(), http.StatusUnauthorized)
		return
	}

	s.lock.Lock()
	if jti != "" {
		s.revoked[jti] = s.nowTime().Add(s.accessTokenTTL)
	}
	// Drop every refresh session belonging to the user
	for refreshToken, session := range s.sessions {
		if session.UserID == user.ID {
			delete(s.sessions, refreshToken)
		}
	}
	s.lock.Unlock()

	s.clearRefreshCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if _, _, err := s.authenticate(r); err != nil {
		writeJSONError(w, "invalid_token", err.Error(), http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, r *http.Request, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    refreshToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil, // Only set Secure flag if using HTTPS
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.refreshTokenTTL.Seconds()),
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
