// Package authtest provides an in-process fake of the support desk auth
// service. Tests and the demo run the session manager against it without a
// real backend; per-route request counters make network-level behaviour
// (single-flight refresh, best-effort logout) assertable.
package authtest

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/authapi"
	"github.com/jrsteele09/go-auth-client/users"
	"github.com/pkg/errors"
)

const (
	// RefreshTokenCookie is the http-only cookie carrying the refresh
	// credential, server-controlled and never read by the client.
	RefreshTokenCookie = "refresh_token"

	// RoutePing is a protected resource outside the auth surface, used to
	// exercise the request interceptor.
	RoutePing = "/api/ping"

	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// refreshSession records one issued refresh token. Tokens rotate on every
// refresh: the previous session is deleted when a new one is created.
type refreshSession struct {
	UserID    string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type Server struct {
	signer          *hmacSigner
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	nowTime         func() time.Time
	mux             *http.ServeMux

	lock       sync.RWMutex
	accounts   map[string]*users.User    // keyed by email
	accountIDs map[string]string         // user ID -> email
	sessions   map[string]refreshSession // refresh token -> session
	revoked    map[string]time.Time      // revoked jti -> token expiry
	counts     map[string]int            // "METHOD /route" -> hits

	failRefresh  bool
	failMe       bool
	refreshDelay time.Duration
	meDelay      time.Duration
}

type ServerOption func(*Server)

// WithAccessTokenTTL overrides the access token lifetime
func WithAccessTokenTTL(ttl time.Duration) ServerOption {
	return func(s *Server) {
		s.accessTokenTTL = ttl
	}
}

// WithRefreshTokenTTL overrides the refresh token lifetime
func WithRefreshTokenTTL(ttl time.Duration) ServerOption {
	return func(s *Server) {
		s.refreshTokenTTL = ttl
	}
}

// WithNowTime overrides the time source
func WithNowTime(nowTime func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowTime = nowTime
	}
}

// WithSecret overrides the HMAC signing secret
func WithSecret(secret string) ServerOption {
	return func(s *Server) {
		s.signer = newHMACSigner(secret)
	}
}

func New(options ...ServerOption) *Server {
	server := &Server{
		signer:          newHMACSigner("authtest-" + uuid.New().String()),
		accessTokenTTL:  defaultAccessTokenTTL,
		refreshTokenTTL: defaultRefreshTokenTTL,
		nowTime:         time.Now,
		accounts:        make(map[string]*users.User),
		accountIDs:      make(map[string]string),
		sessions:        make(map[string]refreshSession),
		revoked:         make(map[string]time.Time),
		counts:          make(map[string]int),
	}
	for _, option := range options {
		option(server)
	}

	server.mux = http.NewServeMux()
	server.mux.HandleFunc("POST "+authapi.RouteLogin, server.handleLogin)
	server.mux.HandleFunc("POST "+authapi.RouteRegister, server.handleRegister)
	server.mux.HandleFunc("POST "+authapi.RouteRefresh, server.handleRefresh)
	server.mux.HandleFunc("GET "+authapi.RouteMe, server.handleMe)
	server.mux.HandleFunc("POST "+authapi.RouteLogout, server.handleLogout)
	server.mux.HandleFunc("GET "+RoutePing, server.handlePing)

	return server
}

// ServeHTTP counts every request before routing it, so tests can assert on
// the network log.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	s.counts[r.Method+" "+r.URL.Path]++
	s.lock.Unlock()

	s.mux.ServeHTTP(w, r)
}

// Requests returns how many times a route was hit, keyed as
// "METHOD /route", e.g. Requests("POST /auth/refresh").
func (s *Server) Requests(methodAndRoute string) int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.counts[methodAndRoute]
}

// ResetRequests zeroes the request counters
func (s *Server) ResetRequests() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.counts = make(map[string]int)
}

// SetFailRefresh makes the refresh endpoint reject every attempt
func (s *Server) SetFailRefresh(fail bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failRefresh = fail
}

// SetFailMe makes the profile endpoint answer 500 without touching auth
func (s *Server) SetFailMe(fail bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failMe = fail
}

// SetRefreshDelay stalls the refresh endpoint, widening the window in
// which concurrent authorization failures pile up behind one refresh.
func (s *Server) SetRefreshDelay(delay time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.refreshDelay = delay
}

// SetMeDelay stalls the profile endpoint, holding a caller's profile fetch
// in flight while other session activity happens around it.
func (s *Server) SetMeDelay(delay time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.meDelay = delay
}

// AddUser seeds an account and returns its profile
func (s *Server) AddUser(email, password, fullName string, role users.RoleType) (*users.User, error) {
	passwordHash, err := users.HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "[AddUser] hashing password")
	}

	user := &users.User{
		ID:           uuid.New().String(),
		Email:        email,
		DisplayName:  fullName,
		PasswordHash: passwordHash,
		Role:         role,
		Status:       users.StatusActive,
		Verified:     true,
		CreatedAt:    s.nowTime(),
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if _, exists := s.accounts[email]; exists {
		return nil, errors.Errorf("[AddUser] account %q already exists", email)
	}
	s.accounts[email] = user
	s.accountIDs[user.ID] = email

	profile := *user
	return &profile, nil
}

// MintAccessToken issues a signed access token for a seeded account with an
// arbitrary lifetime. Tests use negative lifetimes to fabricate expired
// credentials whose refresh cookie is still good.
func (s *Server) MintAccessToken(email string, ttl time.Duration) (string, error) {
	s.lock.RLock()
	user, exists := s.accounts[email]
	s.lock.RUnlock()
	if !exists {
		return "", errors.Errorf("[MintAccessToken] unknown account %q", email)
	}

	accessToken, _, err := s.mintAccessToken(user, ttl)
	return accessToken, err
}

func (s *Server) mintAccessToken(user *users.User, ttl time.Duration) (string, string, error) {
	jti := uuid.New().String()
	claims := jwtlib.MapClaims{
		"iss":   "support-desk-auth",
		"sub":   user.ID,
		"email": user.Email,
		"roles": []string{string(user.Role)},
		"iat":   s.nowTime().Unix(),
		"exp":   s.nowTime().Add(ttl).Unix(),
		"jti":   jti,
	}

	signedToken, err := s.signer.Sign(claims)
	if err != nil {
		return "", "", errors.Wrap(err, "[mintAccessToken] signing token")
	}
	return signedToken, jti, nil
}

// newRefreshSession creates a rotated refresh token for the user, dropping
// any previous token passed in.
func (s *Server) newRefreshSession(user *users.User, previousToken string) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "[newRefreshSession] generating token")
	}
	refreshToken := hex.EncodeToString(tokenBytes)

	s.lock.Lock()
	defer s.lock.Unlock()
	if previousToken != "" {
		delete(s.sessions, previousToken)
	}
	s.sessions[refreshToken] = refreshSession{
		UserID:    user.ID,
		Email:     user.Email,
		CreatedAt: s.nowTime(),
		ExpiresAt: s.nowTime().Add(s.refreshTokenTTL),
	}
	return refreshToken, nil
}

// authenticate validates the bearer token on a request and resolves its
// account. Expired, malformed and revoked tokens all fail.
func (s *Server) authenticate(r *http.Request) (*users.User, string, error) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, "", errors.New("missing bearer token")
	}

	parsedToken, err := jwtlib.ParseWithClaims(parts[1], jwtlib.MapClaims{}, s.signer.GetVerificationKey)
	if err != nil || !parsedToken.Valid {
		return nil, "", errors.New("invalid token")
	}

	claims, ok := parsedToken.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, "", errors.New("error extracting claims")
	}
	sub, _ := claims["sub"].(string)
	jti, _ := claims["jti"].(string)

	s.lock.RLock()
	defer s.lock.RUnlock()
	if _, isRevoked := s.revoked[jti]; isRevoked {
		return nil, "", errors.New("token revoked")
	}
	email, exists := s.accountIDs[sub]
	if !exists {
		return nil, "", errors.New("unknown account")
	}

	user := *s.accounts[email]
	return &user, jti, nil
}
