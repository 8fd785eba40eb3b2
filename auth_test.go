package main

import (
	"testing"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hashed, err := hashPassword("Sunshine1")
	if err != nil {
		t.Fatalf("hashPassword: %v", err)
	}
	if hashed == "Sunshine1" {
		t.Fatal("password stored in plain text")
	}
	if err := comparePassword(hashed, "Sunshine1"); err != nil {
		t.Fatalf("comparePassword: %v", err)
	}
	if err := comparePassword(hashed, "sunshine1"); err == nil {
		t.Fatal("wrong password should not match")
	}
}

func TestValidatePasswordComplexity(t *testing.T) {
	cases := []struct {
		password string
		valid    bool
	}{
		{"Sunshine1", true},
		{"short1A", false},
		{"alllowercase1", false},
		{"ALLUPPERCASE1", false},
		{"NoDigitsHere", false},
	}
	for _, c := range cases {
		err := validatePasswordComplexity(c.password)
		if c.valid && err != nil {
			t.Errorf("%q should be accepted: %v", c.password, err)
		}
		if !c.valid && err == nil {
			t.Errorf("%q should be rejected", c.password)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	if err := validateEmail("alice@example.com"); err != nil {
		t.Errorf("valid email rejected: %v", err)
	}
	for _, bad := range []string{"", "not-an-email", "missing@tld"} {
		if err := validateEmail(bad); err == nil {
			t.Errorf("%q should be rejected", bad)
		}
	}
}

func TestSessionTokenCarriesSessionID(t *testing.T) {
	user := &User{ID: "user-1", Email: "alice@example.com", Role: "patient"}

	session, err := generateSessionTokens(user, "session-abc")
	if err != nil {
		t.Fatalf("generateSessionTokens: %v", err)
	}
	if session.ID != "session-abc" {
		t.Fatalf("payload session id mismatch: %q", session.ID)
	}

	claims, err := validateToken(session.AccessToken)
	if err != nil {
		t.Fatalf("validateToken: %v", err)
	}
	if claims.TokenType != "access" || claims.UserID != "user-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.RegisteredClaims.ID != "session-abc" {
		t.Fatalf("access token jti should be the session id, got %q", claims.RegisteredClaims.ID)
	}

	refreshClaims, err := validateToken(session.RefreshToken)
	if err != nil {
		t.Fatalf("validating refresh token: %v", err)
	}
	if refreshClaims.TokenType != "refresh" {
		t.Fatalf("unexpected refresh token type: %q", refreshClaims.TokenType)
	}
}

func TestExtractTokenFromHeader(t *testing.T) {
	if _, err := extractTokenFromHeader(""); err == nil {
		t.Error("empty header should be rejected")
	}
	if _, err := extractTokenFromHeader("Basic abc"); err == nil {
		t.Error("non-bearer scheme should be rejected")
	}
	token, err := extractTokenFromHeader("Bearer abc123")
	if err != nil || token != "abc123" {
		t.Errorf("bearer token not extracted: %q, %v", token, err)
	}
}
