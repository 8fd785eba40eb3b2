package main

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User represents a registered account (patient or admin)
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Password  string    `json:"-" db:"password"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	Phone     string    `json:"phone" db:"phone"`
	Role      string    `json:"role" db:"role"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Doctor represents a bookable practitioner
type Doctor struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Specialty string    `json:"specialty" db:"specialty"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Appointment represents a booking between a patient and a doctor
type Appointment struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	DoctorID    string    `json:"doctor_id" db:"doctor_id"`
	ScheduledAt time.Time `json:"scheduled_at" db:"scheduled_at"`
	Status      string    `json:"status" db:"status"`
	Notes       string    `json:"notes" db:"notes"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Document represents uploaded document metadata. The file itself lives
// in external storage; only the reference is kept here.
type Document struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	Name       string    `json:"name" db:"name"`
	Type       string    `json:"type" db:"type"`
	StorageURL string    `json:"storage_url" db:"storage_url"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Claims represents JWT claims
type Claims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Request/Response DTOs

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// SessionPayload is the session half of a successful login response
type SessionPayload struct {
	ID           string `json:"id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// LoginResponse represents a successful login
type LoginResponse struct {
	User    *User          `json:"user"`
	Session SessionPayload `json:"session"`
}

// CreateAppointmentRequest represents an appointment creation request
type CreateAppointmentRequest struct {
	DoctorID    string    `json:"doctor_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       string    `json:"notes"`
}

// UpdateAppointmentRequest represents an appointment update request
type UpdateAppointmentRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Status      string     `json:"status,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

// UpdateProfileRequest represents a profile update request
type UpdateProfileRequest struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// CreateDocumentRequest represents a document metadata creation request
type CreateDocumentRequest struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	StorageURL string `json:"storage_url"`
}

// AppointmentEvent is broadcast to WebSocket clients on appointment changes
type AppointmentEvent struct {
	Type        string     `json:"type"`
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	DoctorID    string     `json:"doctor_id,omitempty"`
	Status      string     `json:"status,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// IsValidAppointmentStatus checks if the appointment status is valid
func IsValidAppointmentStatus(status string) bool {
	valid := []string{"pending", "confirmed", "completed", "cancelled"}
	for _, v := range valid {
		if v == status {
			return true
		}
	}
	return false
}

// IsValidDocumentType checks if the document type is valid
func IsValidDocumentType(docType string) bool {
	valid := []string{"prescription", "lab_result", "referral", "insurance", "other"}
	for _, v := range valid {
		if v == docType {
			return true
		}
	}
	return false
}
