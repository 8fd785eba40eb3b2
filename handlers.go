package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Server wires the stores, the admission-control components and the
// HTTP surface together.
type Server struct {
	config       *Config
	users        *UserStore
	doctors      *DoctorStore
	appointments *AppointmentStore
	documents    *DocumentStore
	identity     IdentityProvider
	limiter      *RateLimiter
	sessions     *SessionRegistry
	clients      *ClientManager
}

type contextKey string

const (
	ctxUserID    contextKey = "user_id"
	ctxUserEmail contextKey = "user_email"
	ctxUserRole  contextKey = "user_role"
)

func contextWithUser(ctx context.Context, id, email, role string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, id)
	ctx = context.WithValue(ctx, ctxUserEmail, email)
	ctx = context.WithValue(ctx, ctxUserRole, role)
	return ctx
}

func userIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxUserID).(string)
	return id
}

func isAdmin(r *http.Request) bool {
	role, _ := r.Context().Value(ctxUserRole).(string)
	return role == "admin"
}

// routes builds the router with the middleware chain applied.
func (s *Server) routes() http.Handler {
	r := mux.NewRouter()

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/ws", s.handleWebSocket)

	api := r.PathPrefix("/api/v1").Subrouter()

	// The auth handlers check the verb themselves: with sibling routes
	// registered, a method-restricted match falls through to a 404
	// instead of the router's MethodNotAllowedHandler.
	api.HandleFunc("/auth/register", s.handleRegister)
	api.HandleFunc("/auth/login", s.handleLogin)
	api.HandleFunc("/auth/logout", s.handleLogout)

	api.HandleFunc("/profile", s.handleGetProfile).Methods("GET")
	api.HandleFunc("/profile", s.handleUpdateProfile).Methods("PUT")

	api.HandleFunc("/doctors", s.handleListDoctors).Methods("GET")
	api.HandleFunc("/doctors", s.handleCreateDoctor).Methods("POST")
	api.HandleFunc("/doctors/{id}", s.handleUpdateDoctor).Methods("PUT")
	api.HandleFunc("/doctors/{id}", s.handleDeleteDoctor).Methods("DELETE")

	api.HandleFunc("/appointments", s.handleListAppointments).Methods("GET")
	api.HandleFunc("/appointments", s.handleCreateAppointment).Methods("POST")
	api.HandleFunc("/appointments/{id}", s.handleUpdateAppointment).Methods("PUT")
	api.HandleFunc("/appointments/{id}", s.handleDeleteAppointment).Methods("DELETE")

	api.HandleFunc("/documents", s.handleListDocuments).Methods("GET")
	api.HandleFunc("/documents", s.handleCreateDocument).Methods("POST")
	api.HandleFunc("/documents/{id}", s.handleDeleteDocument).Methods("DELETE")

	return s.securityMiddleware(s.authMiddleware(r))
}

// securityMiddleware adds security headers, CORS and request size limits
func (s *Server) securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if s.config.EnableHTTPS {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		origin := r.Header.Get("Origin")
		allowed := false
		for _, o := range s.config.AllowedOrigins {
			if o == origin {
				allowed = true
				break
			}
		}
		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(s.config.AllowedOrigins) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", s.config.AllowedOrigins[0])
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Requested-With, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates JWT tokens and checks that the token's
// session is still tracked, so sign-out and idle eviction invalidate
// outstanding tokens.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		public := []string{"/api/v1/auth/", "/ws", "/health"}
		for _, path := range public {
			if strings.HasPrefix(r.URL.Path, path) {
				next.ServeHTTP(w, r)
				return
			}
		}

		token, err := extractTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := validateToken(token)
		if err != nil || claims.TokenType != "access" {
			respondError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		if !s.sessions.Active(claims.UserID, claims.RegisteredClaims.ID, time.Now()) {
			respondError(w, http.StatusUnauthorized, "Session expired")
			return
		}

		ctx := r.Context()
		ctx = contextWithUser(ctx, claims.UserID, claims.Email, claims.Role)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Helper functions

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

func getClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ips := strings.Split(fwd, ",")
		return strings.TrimSpace(ips[0])
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Auth handlers

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	// Admission control runs before anything touches the database:
	// a rejected request must not cost a lookup or a bcrypt compare.
	if !s.limiter.Allow(getClientIP(r), r.URL.Path, time.Now()) {
		respondError(w, http.StatusTooManyRequests, "Too many requests")
		return
	}

	// Resolve the account. Any lookup failure, "not found" included,
	// maps to the same generic 401 so the endpoint cannot be used to
	// enumerate accounts.
	userID, err := s.identity.FindAccountByEmail(req.Email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			log.Printf("⚠️ Account lookup failed for login: %v", err)
		}
		// Burn the bcrypt cost a real verification would have paid.
		comparePassword(dummyPasswordHash, req.Password)
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if s.sessions.ActiveCount(userID) >= s.config.MaxConcurrentSessions {
		respondError(w, http.StatusTooManyRequests,
			"Maximum number of concurrent sessions reached. Please sign out from other devices.")
		return
	}

	user, err := s.identity.VerifyCredentials(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		log.Printf("⚠️ Credential verification failed: %v", err)
		respondError(w, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	sessionID := uuid.New().String()
	session, err := generateSessionTokens(user, sessionID)
	if err != nil {
		log.Printf("⚠️ Token generation failed: %v", err)
		respondError(w, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	// The session is tracked only once the provider has accepted the
	// credentials; there is no partially-tracked state to unwind.
	s.sessions.Track(user.ID, sessionID, time.Now())

	log.Printf("✅ Successful login for user: %s", user.Email)
	respondJSON(w, http.StatusOK, LoginResponse{User: user, Session: session})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	token, err := extractTokenFromHeader(r.Header.Get("Authorization"))
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}

	claims, err := validateToken(token)
	if err != nil || claims.TokenType != "access" {
		respondError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	s.sessions.Remove(claims.UserID, claims.RegisteredClaims.ID)

	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" || req.FirstName == "" || req.LastName == "" {
		respondError(w, http.StatusBadRequest, "All fields are required")
		return
	}

	if err := validateEmail(req.Email); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := validatePasswordComplexity(req.Password); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.users.FindAccountByEmail(req.Email); err == nil {
		respondError(w, http.StatusConflict, "User with this email already exists")
		return
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("⚠️ Password hashing failed: %v", err)
		respondError(w, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	user, err := s.users.CreateUser(&User{
		Email:     req.Email,
		Password:  hashed,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		log.Printf("⚠️ User creation failed: %v", err)
		respondError(w, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"user":    user,
		"message": "Registration successful",
	})
}

// Profile handlers

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)

	user, err := s.users.GetUserByID(userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.users.UpdateProfile(userID, req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// Doctor handlers

func (s *Server) handleListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := s.doctors.All()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list doctors")
		return
	}
	respondJSON(w, http.StatusOK, doctors)
}

func (s *Server) handleCreateDoctor(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		respondError(w, http.StatusForbidden, "Admin access required")
		return
	}

	var doctor Doctor
	if err := json.NewDecoder(r.Body).Decode(&doctor); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.doctors.Create(&doctor); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, doctor)
}

func (s *Server) handleUpdateDoctor(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		respondError(w, http.StatusForbidden, "Admin access required")
		return
	}

	var doctor Doctor
	if err := json.NewDecoder(r.Body).Decode(&doctor); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	doctor.ID = mux.Vars(r)["id"]

	if err := s.doctors.Update(&doctor); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, doctor)
}

func (s *Server) handleDeleteDoctor(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		respondError(w, http.StatusForbidden, "Admin access required")
		return
	}

	if err := s.doctors.Delete(mux.Vars(r)["id"]); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Doctor deleted successfully"})
}

// Appointment handlers

func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	var (
		appts []Appointment
		err   error
	)
	if isAdmin(r) {
		appts, err = s.appointments.ListAll()
	} else {
		appts, err = s.appointments.ListByUser(userIDFrom(r))
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list appointments")
		return
	}
	respondJSON(w, http.StatusOK, appts)
}

func (s *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.DoctorID == "" {
		respondError(w, http.StatusBadRequest, "Doctor is required")
		return
	}
	if req.ScheduledAt.Before(time.Now()) {
		respondError(w, http.StatusBadRequest, "Appointment time must be in the future")
		return
	}
	if _, err := s.doctors.GetByID(req.DoctorID); err != nil {
		respondError(w, http.StatusBadRequest, "Doctor not found")
		return
	}

	appt := &Appointment{
		UserID:      userIDFrom(r),
		DoctorID:    req.DoctorID,
		ScheduledAt: req.ScheduledAt,
		Notes:       req.Notes,
	}
	if err := s.appointments.Create(appt); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create appointment")
		return
	}

	s.clients.Broadcast(AppointmentEvent{
		Type:        "appointment_created",
		ID:          appt.ID,
		UserID:      appt.UserID,
		DoctorID:    appt.DoctorID,
		Status:      appt.Status,
		ScheduledAt: &appt.ScheduledAt,
	})
	respondJSON(w, http.StatusCreated, appt)
}

func (s *Server) handleUpdateAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := s.appointments.GetByID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusNotFound, "Appointment not found")
		return
	}
	if appt.UserID != userIDFrom(r) && !isAdmin(r) {
		respondError(w, http.StatusForbidden, "Not your appointment")
		return
	}

	var req UpdateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Status != "" {
		if !IsValidAppointmentStatus(req.Status) {
			respondError(w, http.StatusBadRequest, "Invalid appointment status")
			return
		}
		appt.Status = req.Status
	}
	if req.ScheduledAt != nil {
		if req.ScheduledAt.Before(time.Now()) {
			respondError(w, http.StatusBadRequest, "Appointment time must be in the future")
			return
		}
		appt.ScheduledAt = *req.ScheduledAt
	}
	if req.Notes != nil {
		appt.Notes = *req.Notes
	}

	if err := s.appointments.Update(appt); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update appointment")
		return
	}

	s.clients.Broadcast(AppointmentEvent{
		Type:        "appointment_updated",
		ID:          appt.ID,
		UserID:      appt.UserID,
		DoctorID:    appt.DoctorID,
		Status:      appt.Status,
		ScheduledAt: &appt.ScheduledAt,
	})
	respondJSON(w, http.StatusOK, appt)
}

func (s *Server) handleDeleteAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := s.appointments.GetByID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusNotFound, "Appointment not found")
		return
	}
	if appt.UserID != userIDFrom(r) && !isAdmin(r) {
		respondError(w, http.StatusForbidden, "Not your appointment")
		return
	}

	if err := s.appointments.Delete(appt.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete appointment")
		return
	}

	s.clients.Broadcast(AppointmentEvent{
		Type:   "appointment_deleted",
		ID:     appt.ID,
		UserID: appt.UserID,
	})
	respondJSON(w, http.StatusOK, map[string]string{"message": "Appointment deleted successfully"})
}

// Document handlers

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.documents.ListByUser(userIDFrom(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	doc := &Document{
		UserID:     userIDFrom(r),
		Name:       req.Name,
		Type:       req.Type,
		StorageURL: req.StorageURL,
	}
	if err := s.documents.Create(doc); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documents.GetByID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusNotFound, "Document not found")
		return
	}
	if doc.UserID != userIDFrom(r) && !isAdmin(r) {
		respondError(w, http.StatusForbidden, "Not your document")
		return
	}

	if err := s.documents.Delete(doc.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Document deleted successfully"})
}

// WebSocket and health

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range s.config.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️ WebSocket upgrade failed: %v", err)
		return
	}

	s.clients.Add(conn)

	go func() {
		defer s.clients.Remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	})
}
