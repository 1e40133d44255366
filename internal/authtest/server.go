// Package authtest runs an in-process fake of the attendance backend's
// authentication API for tests. Tokens are real HS256 JWTs whose expiry is
// judged against the server's clock, so a clockwork.FakeClock shared with
// the code under test controls both sides.
package authtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/geopresence/internal/client/models"
	"github.com/dmitrijs2005/geopresence/internal/common"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
)

// RefreshShape selects the body returned by POST /refresh.
type RefreshShape int

const (
	// ShapeExpiresAt returns {access_token, expires_at}.
	ShapeExpiresAt RefreshShape = iota
	// ShapeAccessExp returns {access_token, access_exp, refresh_exp}.
	ShapeAccessExp
	// ShapeTokenOnly returns {access_token}; the expiry lives in the JWT.
	ShapeTokenOnly
	// ShapeCookie returns {access_exp, refresh_exp}; the new access token is
	// only set as a cookie.
	ShapeCookie
)

// Counters of handled requests, by endpoint.
type Counters struct {
	Register      atomic.Int64
	Login         atomic.Int64
	Logout        atomic.Int64
	Refresh       atomic.Int64
	CookieRefresh atomic.Int64
	BearerRefresh atomic.Int64
	FailedRefresh atomic.Int64
	Profile       atomic.Int64
	TokenExpiry   atomic.Int64
	Attendance    atomic.Int64
}

// Passwords are stored as bcrypt hashes at the lowest cost so tests stay fast.
type account struct {
	user models.User
	hash []byte
}

// Server is the fake backend. Knobs may be changed while it runs.
type Server struct {
	*httptest.Server

	Calls Counters

	clock  clockwork.Clock
	issuer issuer

	mu            sync.Mutex
	accounts      map[string]*account
	nextID        int64
	accessTTL     time.Duration
	refreshTTL    time.Duration
	shape         RefreshShape
	refreshStatus int
	rejectProfile int
	logoutStatus  int
	refreshGate   chan struct{}
}

// New starts a server whose tokens live accessTTL / refreshTTL on clock.
func New(clock clockwork.Clock, accessTTL, refreshTTL time.Duration) *Server {
	s := &Server{
		clock:      clock,
		issuer:     issuer{secret: []byte("authtest-secret"), clock: clock},
		accounts:   make(map[string]*account),
		nextID:     1,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.HandleFunc("GET /profile", s.handleProfile)
	mux.HandleFunc("GET /token-expiry", s.handleTokenExpiry)
	mux.HandleFunc("GET /attendance", s.handleAttendance)

	s.Server = httptest.NewServer(mux)
	return s
}

// AddUser registers an account directly. It panics on a password bcrypt
// refuses (longer than 72 bytes).
func (s *Server) AddUser(fullName, email, password string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.addLocked(fullName, email, password)
	if err != nil {
		panic(err)
	}
	return u
}

func (s *Server) addLocked(fullName, email, password string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return models.User{}, err
	}
	u := models.User{ID: s.nextID, FullName: fullName, Email: email}
	s.nextID++
	s.accounts[strings.ToLower(email)] = &account{user: u, hash: hash}
	return u, nil
}

// SetAccessTTL changes the lifetime of tokens issued from now on.
func (s *Server) SetAccessTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTTL = d
}

func (s *Server) SetRefreshShape(shape RefreshShape) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shape = shape
}

// FailRefresh makes every refresh answer with status; 0 restores normal
// behaviour.
func (s *Server) FailRefresh(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshStatus = status
}

// FailLogout makes logout answer with status; 0 restores normal behaviour.
func (s *Server) FailLogout(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutStatus = status
}

// RejectProfile makes the next n profile requests answer 401.
func (s *Server) RejectProfile(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectProfile = n
}

// HoldRefresh blocks refresh handlers until the returned func is called.
func (s *Server) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.refreshGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.refreshGate == gate {
				s.refreshGate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// IssueAccess signs an access token for userID with a custom lifetime.
func (s *Server) IssueAccess(userID int64, ttl time.Duration) (string, time.Time) {
	tok, exp, err := s.issuer.issue(userID, kindAccess, ttl)
	if err != nil {
		panic(err)
	}
	return tok, exp
}

// IssueRefresh signs a refresh token for userID.
func (s *Server) IssueRefresh(userID int64) string {
	s.mu.Lock()
	ttl := s.refreshTTL
	s.mu.Unlock()
	tok, _, err := s.issuer.issue(userID, kindRefresh, ttl)
	if err != nil {
		panic(err)
	}
	return tok
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.Calls.Register.Add(1)

	var req struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FullName == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[strings.ToLower(req.Email)]; ok {
		writeError(w, http.StatusConflict, "Email already registered")
		return
	}
	if _, err := s.addLocked(req.FullName, req.Email, req.Password); err != nil {
		writeError(w, http.StatusBadRequest, "Password is not acceptable")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Registration successful"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.Calls.Login.Add(1)

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password required")
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(req.Email)]
	accessTTL, refreshTTL := s.accessTTL, s.refreshTTL
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	access, accessExp, err := s.issuer.issue(acc.user.ID, kindAccess, accessTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	refresh, refreshExp, err := s.issuer.issue(acc.user.ID, kindRefresh, refreshTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	setCookie(w, common.AccessCookieName, access)
	setCookie(w, common.RefreshCookieName, refresh)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Login successful",
		"access_token":  access,
		"refresh_token": refresh,
		"access_exp":    accessExp.Unix(),
		"refresh_exp":   refreshExp.Unix(),
		"user":          acc.user,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Calls.Logout.Add(1)

	s.mu.Lock()
	status := s.logoutStatus
	s.mu.Unlock()
	if status != 0 {
		writeError(w, status, "logout failed")
		return
	}

	clearCookie(w, common.AccessCookieName)
	clearCookie(w, common.RefreshCookieName)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out successfully"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.Calls.Refresh.Add(1)

	s.mu.Lock()
	gate, status, shape, accessTTL := s.refreshGate, s.refreshStatus, s.shape, s.accessTTL
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	token, fromHeader := common.BearerToken(r.Header.Get(common.AuthorizationHeader)), true
	if token == "" {
		fromHeader = false
		if c, err := r.Cookie(common.RefreshCookieName); err == nil {
			token = c.Value
		}
	}
	if fromHeader {
		s.Calls.BearerRefresh.Add(1)
	} else {
		s.Calls.CookieRefresh.Add(1)
	}

	if status != 0 {
		s.Calls.FailedRefresh.Add(1)
		writeError(w, status, "refresh failed")
		return
	}

	claims, err := s.issuer.verify(token, kindRefresh)
	if err != nil {
		s.Calls.FailedRefresh.Add(1)
		writeError(w, http.StatusUnauthorized, "Token has expired")
		return
	}
	userID, _ := strconv.ParseInt(claims.Subject, 10, 64)

	access, accessExp, err := s.issuer.issue(userID, kindAccess, accessTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	setCookie(w, common.AccessCookieName, access)

	body := map[string]any{}
	if shape != ShapeCookie {
		body["access_token"] = access
	}
	switch shape {
	case ShapeExpiresAt:
		body["expires_at"] = accessExp.Unix()
	case ShapeAccessExp:
		// milliseconds, as some deployments send them
		body["access_exp"] = accessExp.UnixMilli()
		body["refresh_exp"] = claims.ExpiresAt.Unix()
	case ShapeCookie:
		body["access_exp"] = accessExp.Unix()
		body["refresh_exp"] = claims.ExpiresAt.Unix()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.Calls.Profile.Add(1)

	s.mu.Lock()
	reject := s.rejectProfile > 0
	if reject {
		s.rejectProfile--
	}
	s.mu.Unlock()
	if reject {
		writeError(w, http.StatusUnauthorized, "Token has expired")
		return
	}

	claims, ok := s.authorize(w, r)
	if !ok {
		return
	}
	u, ok := s.userByID(claims.Subject)
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleTokenExpiry(w http.ResponseWriter, r *http.Request) {
	s.Calls.TokenExpiry.Add(1)

	claims, ok := s.authorize(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"access_exp": claims.ExpiresAt.Unix()})
}

// handleAttendance stands in for any protected business endpoint.
func (s *Server) handleAttendance(w http.ResponseWriter, r *http.Request) {
	s.Calls.Attendance.Add(1)

	if _, ok := s.authorize(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, []map[string]any{
		{"session_id": 1, "student": "S001", "status": "present"},
	})
}

// authorize validates the access token from the Authorization header, or
// from the access cookie when no header is sent.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (*Claims, bool) {
	token := common.BearerToken(r.Header.Get(common.AuthorizationHeader))
	if token == "" {
		if c, err := r.Cookie(common.AccessCookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Missing Authorization Header")
		return nil, false
	}
	claims, err := s.issuer.verify(token, kindAccess)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Token has expired")
		return nil, false
	}
	return claims, true
}

func (s *Server) userByID(subject string) (models.User, bool) {
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return models.User{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.user.ID == id {
			return acc.user, true
		}
	}
	return models.User{}, false
}

func setCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		// Expiry is enforced by the JWT against the fake clock; the jar
		// only needs to keep the cookie around.
		MaxAge: int((24 * time.Hour).Seconds()),
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
