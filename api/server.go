package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/wricardo/morpion/auth"
	"github.com/wricardo/morpion/game/service"
	"github.com/wricardo/morpion/game/session"
)

// RoomInspector reads live room state.
type RoomInspector interface {
	Rooms(ctx context.Context) ([]session.RoomInfo, error)
	Room(ctx context.Context, code string) (session.RoomInfo, bool, error)
	Stats(ctx context.Context) (session.Stats, error)
}

// Deps are the collaborators the API routes to. Nil Accounts or Records
// leaves those routes unregistered.
type Deps struct {
	Rooms    RoomInspector
	Accounts service.AccountService
	Records  service.RecordService
	Verifier auth.Verifier
	// WebSocket is mounted at /ws when set.
	WebSocket http.Handler
	// MCP is mounted at /mcp when set.
	MCP    http.Handler
	Logger zerolog.Logger
}

// Server represents the REST API server
type Server struct {
	rooms    RoomInspector
	accounts service.AccountService
	records  service.RecordService
	verifier auth.Verifier
	ws       http.Handler
	mcp      http.Handler
	log      zerolog.Logger
	router   *mux.Router
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	s := &Server{
		rooms:    deps.Rooms,
		accounts: deps.Accounts,
		records:  deps.Records,
		verifier: deps.Verifier,
		ws:       deps.WebSocket,
		mcp:      deps.MCP,
		log:      deps.Logger,
		router:   mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Live rooms
	api.HandleFunc("/rooms", s.handleListRooms).Methods("GET")
	api.HandleFunc("/rooms/{code}", s.handleGetRoom).Methods("GET")
	api.HandleFunc("/rooms/{code}/scores", s.handleRoomScores).Methods("GET")

	if s.accounts != nil {
		api.HandleFunc("/register", s.handleRegister).Methods("POST")
		api.HandleFunc("/verify-email", s.handleVerifyEmail).Methods("GET")
		api.HandleFunc("/login", s.handleLogin).Methods("POST")
		api.Handle("/logout", s.protect(http.HandlerFunc(s.handleLogout))).Methods("POST")
		api.HandleFunc("/users", s.handleListUsers).Methods("GET")
		api.HandleFunc("/users/{id}", s.handleGetUser).Methods("GET")
	}

	if s.records != nil {
		api.Handle("/games", s.protect(http.HandlerFunc(s.handleCreateGame))).Methods("POST")
		api.Handle("/games", s.protect(http.HandlerFunc(s.handleListGames))).Methods("GET")
		api.Handle("/user/games", s.protect(http.HandlerFunc(s.handleUserGames))).Methods("GET")
		api.Handle("/games/{action}/{gameId}", s.protect(http.HandlerFunc(s.handleUpdateGame))).Methods("PATCH")
	}

	if s.ws != nil {
		s.router.Handle("/ws", s.ws)
	}
	if s.mcp != nil {
		s.router.Handle("/mcp", s.mcp).Methods("POST")
	}
}

// protect requires a bearer token. Without a verifier every call is refused.
func (s *Server) protect(next http.Handler) http.Handler {
	if s.verifier == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, http.StatusUnauthorized, "Unauthorized")
		})
	}
	return auth.Require(s.verifier)(next)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps service sentinels to status codes.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrMissingFields),
		errors.Is(err, service.ErrGameFinished),
		errors.Is(err, service.ErrGameFull),
		errors.Is(err, service.ErrGameNotPending),
		errors.Is(err, service.ErrMissingScore),
		errors.Is(err, service.ErrUnknownAction),
		errors.Is(err, service.ErrMissingUserID),
		errors.Is(err, service.ErrMissingGameID):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotVerified),
		errors.Is(err, service.ErrBadCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrGameNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrUsernameTaken):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondError(w, status, "Internal server error")
		return
	}
	respondError(w, status, err.Error())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.rooms == nil {
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	stats, err := s.rooms.Stats(r.Context())
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"stats":  stats,
	})
}

// Room Handlers

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	if s.rooms == nil {
		respondError(w, http.StatusServiceUnavailable, "rooms are unavailable")
		return
	}
	rooms, err := s.rooms.Rooms(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(rooms),
		"rooms": rooms,
	})
}

func (s *Server) lookupRoom(w http.ResponseWriter, r *http.Request) (session.RoomInfo, bool) {
	if s.rooms == nil {
		respondError(w, http.StatusServiceUnavailable, "rooms are unavailable")
		return session.RoomInfo{}, false
	}
	code := mux.Vars(r)["code"]
	info, ok, err := s.rooms.Room(r.Context(), code)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return session.RoomInfo{}, false
	}
	if !ok {
		respondError(w, http.StatusNotFound, "room not found")
		return session.RoomInfo{}, false
	}
	return info, true
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	info, ok := s.lookupRoom(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleRoomScores(w http.ResponseWriter, r *http.Request) {
	info, ok := s.lookupRoom(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"code":   info.Code,
		"scores": info.Scores,
	})
}

// Account Handlers

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.accounts.Register(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User created successfully. Please check your email to verify your account.",
		"user":    user,
	})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		respondError(w, http.StatusBadRequest, "email is required")
		return
	}
	if err := s.accounts.VerifyEmail(r.Context(), email); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Email verified successfully"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.accounts.Login(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFrom(r.Context())
	if err := s.accounts.Logout(r.Context(), token); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.accounts.ListUsers(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.accounts.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// Game Record Handlers

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())
	game, err := s.records.CreateGame(r.Context(), claims.UserID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, game)
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.records.ListGames(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, games)
}

func (s *Server) handleUserGames(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())
	games, err := s.records.UserGames(r.Context(), claims.UserID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, games)
}

func (s *Server) handleUpdateGame(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req service.UpdateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		claims, _ := auth.ClaimsFrom(r.Context())
		req.UserID = claims.UserID
	}

	game, err := s.records.UpdateGame(r.Context(), vars["action"], vars["gameId"], req)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, game)
}
