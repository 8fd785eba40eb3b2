package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	// A pooled second connection would see a different in-memory DB.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUserStoreCreateAndVerify(t *testing.T) {
	db := openTestDB(t)
	store, err := NewUserStore(db)
	if err != nil {
		t.Fatalf("NewUserStore: %v", err)
	}

	hashed, err := hashPassword("Sunshine1")
	if err != nil {
		t.Fatalf("hashPassword: %v", err)
	}
	user, err := store.CreateUser(&User{
		Email:     "alice@example.com",
		Password:  hashed,
		FirstName: "Alice",
		LastName:  "Moreau",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.ID == "" || user.Role != "patient" {
		t.Fatalf("unexpected created user: %+v", user)
	}

	id, err := store.FindAccountByEmail("alice@example.com")
	if err != nil || id != user.ID {
		t.Fatalf("FindAccountByEmail: id=%q err=%v", id, err)
	}
	if _, err := store.FindAccountByEmail("nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	verified, err := store.VerifyCredentials("alice@example.com", "Sunshine1")
	if err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}
	if verified.ID != user.ID {
		t.Fatalf("verified wrong user: %s", verified.ID)
	}

	if _, err := store.VerifyCredentials("alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := store.VerifyCredentials("nobody@example.com", "Sunshine1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestUserStoreInactiveAccountCannotLogin(t *testing.T) {
	db := openTestDB(t)
	store, err := NewUserStore(db)
	if err != nil {
		t.Fatalf("NewUserStore: %v", err)
	}

	hashed, _ := hashPassword("Sunshine1")
	user, err := store.CreateUser(&User{
		Email: "bob@example.com", Password: hashed,
		FirstName: "Bob", LastName: "Lee",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := db.Exec("UPDATE users SET active = 0 WHERE id = ?", user.ID); err != nil {
		t.Fatalf("disabling user: %v", err)
	}

	if _, err := store.VerifyCredentials("bob@example.com", "Sunshine1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("disabled account: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestDoctorStoreCRUD(t *testing.T) {
	db := openTestDB(t)
	store, err := NewDoctorStore(db)
	if err != nil {
		t.Fatalf("NewDoctorStore: %v", err)
	}

	d := &Doctor{Name: "Dr. Sarah Chen", Specialty: "Cardiology"}
	if err := store.Create(d); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(&Doctor{Name: "No Specialty"}); err == nil {
		t.Fatal("doctor without specialty should be rejected")
	}

	doctors, err := store.All()
	if err != nil || len(doctors) != 1 {
		t.Fatalf("All: %v, %d doctors", err, len(doctors))
	}

	d.Specialty = "General Practice"
	if err := store.Update(d); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := store.GetByID(d.ID)
	if err != nil || got.Specialty != "General Practice" {
		t.Fatalf("GetByID after update: %+v, %v", got, err)
	}

	if err := store.Delete(d.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.GetByID(d.ID); err == nil {
		t.Fatal("deleted doctor should not be found")
	}
}

func TestAppointmentStoreCRUD(t *testing.T) {
	db := openTestDB(t)
	store, err := NewAppointmentStore(db)
	if err != nil {
		t.Fatalf("NewAppointmentStore: %v", err)
	}

	when := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	a := &Appointment{UserID: "u1", DoctorID: "d1", ScheduledAt: when, Notes: "follow-up"}
	if err := store.Create(a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.Status != "pending" {
		t.Fatalf("expected default status pending, got %q", a.Status)
	}

	mine, err := store.ListByUser("u1")
	if err != nil || len(mine) != 1 {
		t.Fatalf("ListByUser: %v, %d appointments", err, len(mine))
	}
	if !mine[0].ScheduledAt.Equal(when) {
		t.Fatalf("scheduled time mismatch: %v vs %v", mine[0].ScheduledAt, when)
	}
	if others, _ := store.ListByUser("u2"); len(others) != 0 {
		t.Fatalf("u2 should have no appointments, got %d", len(others))
	}

	a.Status = "confirmed"
	if err := store.Update(a); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := store.GetByID(a.ID)
	if err != nil || got.Status != "confirmed" {
		t.Fatalf("GetByID after update: %+v, %v", got, err)
	}

	if err := store.Delete(a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if all, _ := store.ListAll(); len(all) != 0 {
		t.Fatalf("expected no appointments after delete, got %d", len(all))
	}
}

func TestDocumentStoreCRUD(t *testing.T) {
	db := openTestDB(t)
	store, err := NewDocumentStore(db)
	if err != nil {
		t.Fatalf("NewDocumentStore: %v", err)
	}

	d := &Document{UserID: "u1", Name: "blood-panel.pdf", Type: "lab_result", StorageURL: "https://storage.example.com/u1/blood-panel.pdf"}
	if err := store.Create(d); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(&Document{UserID: "u1", Name: "x", Type: "selfie", StorageURL: "https://x"}); err == nil {
		t.Fatal("invalid document type should be rejected")
	}

	docs, err := store.ListByUser("u1")
	if err != nil || len(docs) != 1 {
		t.Fatalf("ListByUser: %v, %d documents", err, len(docs))
	}

	if err := store.Delete(d.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if docs, _ = store.ListByUser("u1"); len(docs) != 0 {
		t.Fatalf("expected no documents after delete, got %d", len(docs))
	}
}

// Full round trip against the real sqlite-backed identity provider.
func TestRegisterThenLoginEndToEnd(t *testing.T) {
	db := openTestDB(t)
	users, err := NewUserStore(db)
	if err != nil {
		t.Fatalf("NewUserStore: %v", err)
	}

	s := newTestServer(users, testConfig())
	s.users = users
	h := s.routes()

	reg := doJSON(h, "POST", "/api/v1/auth/register", RegisterRequest{
		Email:     "carol@example.com",
		Password:  "Woodpecker7",
		FirstName: "Carol",
		LastName:  "Nguyen",
	}, nil)
	if reg.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", reg.Code, reg.Body.String())
	}

	dup := doJSON(h, "POST", "/api/v1/auth/register", RegisterRequest{
		Email: "carol@example.com", Password: "Woodpecker7",
		FirstName: "Carol", LastName: "Nguyen",
	}, nil)
	if dup.Code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", dup.Code)
	}

	login := doJSON(h, "POST", "/api/v1/auth/login",
		LoginRequest{Email: "carol@example.com", Password: "Woodpecker7"}, nil)
	if login.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", login.Code, login.Body.String())
	}

	var resp LoginResponse
	json.Unmarshal(login.Body.Bytes(), &resp)

	profile := doJSON(h, "GET", "/api/v1/profile", nil,
		map[string]string{"Authorization": "Bearer " + resp.Session.AccessToken})
	if profile.Code != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d", profile.Code)
	}

	bad := doJSON(h, "POST", "/api/v1/auth/login",
		LoginRequest{Email: "carol@example.com", Password: "wrong-password"}, nil)
	if bad.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", bad.Code)
	}
}
