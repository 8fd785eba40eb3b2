package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors returned by the identity provider contract. Anything
// else coming out of FindAccountByEmail/VerifyCredentials is an upstream
// failure, not a credential problem.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// IdentityProvider is the contract the login handler consumes. In
// production it is backed by UserStore; tests swap in a fake.
type IdentityProvider interface {
	FindAccountByEmail(email string) (string, error)
	VerifyCredentials(email, password string) (*User, error)
}

// UserStore handles user data operations and credential verification
type UserStore struct {
	db *sql.DB
}

// DoctorStore handles doctor data operations
type DoctorStore struct {
	db *sql.DB
}

// AppointmentStore handles appointment data operations
type AppointmentStore struct {
	db *sql.DB
}

// DocumentStore handles document metadata operations
type DocumentStore struct {
	db *sql.DB
}

// NewUserStore creates a new user store
func NewUserStore(db *sql.DB) (*UserStore, error) {
	store := &UserStore{db: db}

	if err := store.initializeUserTable(); err != nil {
		return nil, fmt.Errorf("failed to initialize user table: %w", err)
	}

	return store, nil
}

func (us *UserStore) initializeUserTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		phone TEXT DEFAULT '',
		role TEXT DEFAULT 'patient',
		active BOOLEAN DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users (email);
	CREATE INDEX IF NOT EXISTS idx_users_role ON users (role);
	`

	_, err := us.db.Exec(query)
	return err
}

// CreateUser inserts a new user. The password must already be hashed.
func (us *UserStore) CreateUser(user *User) (*User, error) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Role == "" {
		user.Role = "patient"
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Active = true

	query := `
		INSERT INTO users (id, email, password, first_name, last_name, phone, role, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := us.db.Exec(query,
		user.ID, user.Email, user.Password, user.FirstName, user.LastName,
		user.Phone, user.Role, user.Active,
		user.CreatedAt.Format(time.RFC3339), user.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Printf("👤 User created: %s", user.Email)
	return user, nil
}

func (us *UserStore) scanUser(row *sql.Row) (*User, error) {
	var user User
	var createdAt, updatedAt string

	err := row.Scan(&user.ID, &user.Email, &user.Password, &user.FirstName,
		&user.LastName, &user.Phone, &user.Role, &user.Active, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		user.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		user.UpdatedAt = t
	}
	return &user, nil
}

// GetUserByEmail returns the user with the given email
func (us *UserStore) GetUserByEmail(email string) (*User, error) {
	row := us.db.QueryRow(`
		SELECT id, email, password, first_name, last_name, phone, role, active, created_at, updated_at
		FROM users WHERE email = ?`, email)
	return us.scanUser(row)
}

// GetUserByID returns the user with the given id
func (us *UserStore) GetUserByID(id string) (*User, error) {
	row := us.db.QueryRow(`
		SELECT id, email, password, first_name, last_name, phone, role, active, created_at, updated_at
		FROM users WHERE id = ?`, id)
	return us.scanUser(row)
}

// UpdateProfile updates the mutable profile fields of a user
func (us *UserStore) UpdateProfile(id string, req UpdateProfileRequest) (*User, error) {
	user, err := us.GetUserByID(id)
	if err != nil {
		return nil, err
	}

	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if req.Phone != "" {
		user.Phone = req.Phone
	}
	user.UpdatedAt = time.Now()

	_, err = us.db.Exec(`
		UPDATE users SET first_name = ?, last_name = ?, phone = ?, updated_at = ?
		WHERE id = ?`,
		user.FirstName, user.LastName, user.Phone,
		user.UpdatedAt.Format(time.RFC3339), user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// FindAccountByEmail resolves an email to a user id. Returns
// ErrUserNotFound when no such account exists.
func (us *UserStore) FindAccountByEmail(email string) (string, error) {
	var id string
	err := us.db.QueryRow("SELECT id FROM users WHERE email = ?", email).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return id, nil
}

// VerifyCredentials checks an email/password pair. Unknown accounts,
// disabled accounts and wrong passwords all map to ErrInvalidCredentials
// so callers cannot distinguish them.
func (us *UserStore) VerifyCredentials(email, password string) (*User, error) {
	user, err := us.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.Active {
		return nil, ErrInvalidCredentials
	}

	if err := comparePassword(user.Password, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Doctor Store Methods

// NewDoctorStore creates a new doctor store
func NewDoctorStore(db *sql.DB) (*DoctorStore, error) {
	store := &DoctorStore{db: db}

	query := `
	CREATE TABLE IF NOT EXISTS doctors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		specialty TEXT NOT NULL,
		email TEXT DEFAULT '',
		phone TEXT DEFAULT '',
		active BOOLEAN DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("failed to initialize doctor table: %w", err)
	}

	return store, nil
}

// All returns every active doctor
func (ds *DoctorStore) All() ([]Doctor, error) {
	rows, err := ds.db.Query(`
		SELECT id, name, specialty, email, phone, active, created_at, updated_at
		FROM doctors WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	doctors := make([]Doctor, 0)
	for rows.Next() {
		var d Doctor
		var createdAt, updatedAt string
		if err := rows.Scan(&d.ID, &d.Name, &d.Specialty, &d.Email, &d.Phone,
			&d.Active, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			d.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			d.UpdatedAt = t
		}
		doctors = append(doctors, d)
	}
	return doctors, rows.Err()
}

// GetByID returns the doctor with the given id
func (ds *DoctorStore) GetByID(id string) (*Doctor, error) {
	var d Doctor
	var createdAt, updatedAt string
	err := ds.db.QueryRow(`
		SELECT id, name, specialty, email, phone, active, created_at, updated_at
		FROM doctors WHERE id = ?`, id).
		Scan(&d.ID, &d.Name, &d.Specialty, &d.Email, &d.Phone, &d.Active, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("doctor not found")
		}
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		d.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		d.UpdatedAt = t
	}
	return &d, nil
}

// Create inserts a new doctor
func (ds *DoctorStore) Create(d *Doctor) error {
	if d.Name == "" || d.Specialty == "" {
		return errors.New("doctor name and specialty are required")
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}

	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	d.Active = true

	_, err := ds.db.Exec(`
		INSERT INTO doctors (id, name, specialty, email, phone, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Specialty, d.Email, d.Phone, d.Active,
		d.CreatedAt.Format(time.RFC3339), d.UpdatedAt.Format(time.RFC3339))
	return err
}

// Update updates a doctor's details
func (ds *DoctorStore) Update(d *Doctor) error {
	if d.Name == "" || d.Specialty == "" {
		return errors.New("doctor name and specialty are required")
	}

	d.UpdatedAt = time.Now()
	res, err := ds.db.Exec(`
		UPDATE doctors SET name = ?, specialty = ?, email = ?, phone = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		d.Name, d.Specialty, d.Email, d.Phone, d.Active,
		d.UpdatedAt.Format(time.RFC3339), d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("doctor not found")
	}
	return nil
}

// Delete removes a doctor
func (ds *DoctorStore) Delete(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid doctor ID format")
	}
	_, err := ds.db.Exec("DELETE FROM doctors WHERE id = ?", id)
	return err
}

// Appointment Store Methods

// NewAppointmentStore creates a new appointment store
func NewAppointmentStore(db *sql.DB) (*AppointmentStore, error) {
	store := &AppointmentStore{db: db}

	query := `
	CREATE TABLE IF NOT EXISTS appointments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		doctor_id TEXT NOT NULL,
		scheduled_at DATETIME NOT NULL,
		status TEXT DEFAULT 'pending',
		notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
		FOREIGN KEY (doctor_id) REFERENCES doctors (id)
	);

	CREATE INDEX IF NOT EXISTS idx_appointments_user ON appointments (user_id);
	CREATE INDEX IF NOT EXISTS idx_appointments_doctor ON appointments (doctor_id);
	`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("failed to initialize appointment table: %w", err)
	}

	return store, nil
}

func scanAppointments(rows *sql.Rows) ([]Appointment, error) {
	appts := make([]Appointment, 0)
	for rows.Next() {
		var a Appointment
		var scheduledAt, createdAt, updatedAt string
		if err := rows.Scan(&a.ID, &a.UserID, &a.DoctorID, &scheduledAt,
			&a.Status, &a.Notes, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, scheduledAt); err == nil {
			a.ScheduledAt = t
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			a.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			a.UpdatedAt = t
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

// ListByUser returns the appointments belonging to a user
func (as *AppointmentStore) ListByUser(userID string) ([]Appointment, error) {
	rows, err := as.db.Query(`
		SELECT id, user_id, doctor_id, scheduled_at, status, notes, created_at, updated_at
		FROM appointments WHERE user_id = ? ORDER BY scheduled_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListAll returns every appointment (admin view)
func (as *AppointmentStore) ListAll() ([]Appointment, error) {
	rows, err := as.db.Query(`
		SELECT id, user_id, doctor_id, scheduled_at, status, notes, created_at, updated_at
		FROM appointments ORDER BY scheduled_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// GetByID returns the appointment with the given id
func (as *AppointmentStore) GetByID(id string) (*Appointment, error) {
	var a Appointment
	var scheduledAt, createdAt, updatedAt string
	err := as.db.QueryRow(`
		SELECT id, user_id, doctor_id, scheduled_at, status, notes, created_at, updated_at
		FROM appointments WHERE id = ?`, id).
		Scan(&a.ID, &a.UserID, &a.DoctorID, &scheduledAt, &a.Status, &a.Notes, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("appointment not found")
		}
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339, scheduledAt); err == nil {
		a.ScheduledAt = t
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		a.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		a.UpdatedAt = t
	}
	return &a, nil
}

// Create inserts a new appointment
func (as *AppointmentStore) Create(a *Appointment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = "pending"
	}

	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := as.db.Exec(`
		INSERT INTO appointments (id, user_id, doctor_id, scheduled_at, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.DoctorID, a.ScheduledAt.Format(time.RFC3339),
		a.Status, a.Notes,
		a.CreatedAt.Format(time.RFC3339), a.UpdatedAt.Format(time.RFC3339))
	return err
}

// Update persists changes to an existing appointment
func (as *AppointmentStore) Update(a *Appointment) error {
	a.UpdatedAt = time.Now()
	res, err := as.db.Exec(`
		UPDATE appointments SET scheduled_at = ?, status = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		a.ScheduledAt.Format(time.RFC3339), a.Status, a.Notes,
		a.UpdatedAt.Format(time.RFC3339), a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("appointment not found")
	}
	return nil
}

// Delete removes an appointment
func (as *AppointmentStore) Delete(id string) error {
	_, err := as.db.Exec("DELETE FROM appointments WHERE id = ?", id)
	return err
}

// Document Store Methods

// NewDocumentStore creates a new document metadata store
func NewDocumentStore(db *sql.DB) (*DocumentStore, error) {
	store := &DocumentStore{db: db}

	query := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT DEFAULT 'other',
		storage_url TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_documents_user ON documents (user_id);
	`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("failed to initialize document table: %w", err)
	}

	return store, nil
}

// ListByUser returns the document records belonging to a user
func (ds *DocumentStore) ListByUser(userID string) ([]Document, error) {
	rows, err := ds.db.Query(`
		SELECT id, user_id, name, type, storage_url, created_at
		FROM documents WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		var d Document
		var createdAt string
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.Type, &d.StorageURL, &createdAt); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			d.CreatedAt = t
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// GetByID returns the document record with the given id
func (ds *DocumentStore) GetByID(id string) (*Document, error) {
	var d Document
	var createdAt string
	err := ds.db.QueryRow(`
		SELECT id, user_id, name, type, storage_url, created_at
		FROM documents WHERE id = ?`, id).
		Scan(&d.ID, &d.UserID, &d.Name, &d.Type, &d.StorageURL, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document not found")
		}
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		d.CreatedAt = t
	}
	return &d, nil
}

// Create inserts a new document record
func (ds *DocumentStore) Create(d *Document) error {
	if d.Name == "" || d.StorageURL == "" {
		return errors.New("document name and storage URL are required")
	}
	if d.Type == "" {
		d.Type = "other"
	}
	if !IsValidDocumentType(d.Type) {
		return errors.New("invalid document type")
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.CreatedAt = time.Now()

	_, err := ds.db.Exec(`
		INSERT INTO documents (id, user_id, name, type, storage_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.Name, d.Type, d.StorageURL, d.CreatedAt.Format(time.RFC3339))
	return err
}

// Delete removes a document record
func (ds *DocumentStore) Delete(id string) error {
	_, err := ds.db.Exec("DELETE FROM documents WHERE id = ?", id)
	return err
}
