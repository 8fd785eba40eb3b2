package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Global variables for JWT configuration
var (
	jwtSecret         []byte
	jwtRefreshSecret  []byte
	jwtExpiration     = time.Duration(1) * time.Hour    // 1 hour for access tokens
	refreshExpiration = time.Duration(7*24) * time.Hour // 7 days for refresh tokens
	bcryptCost        = bcrypt.DefaultCost
)

// initJWT initializes JWT secrets
func initJWT() error {
	secret := os.Getenv("JWT_SECRET")
	refreshSecret := os.Getenv("JWT_REFRESH_SECRET")

	if secret == "" {
		randomBytes := make([]byte, 64)
		if _, err := rand.Read(randomBytes); err != nil {
			return fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		jwtSecret = randomBytes
		log.Println("🔑 Generated random JWT secret (set JWT_SECRET env var for production)")
	} else {
		jwtSecret = []byte(secret)
		log.Println("🔑 Using JWT secret from environment")
	}

	if refreshSecret == "" {
		randomBytes := make([]byte, 64)
		if _, err := rand.Read(randomBytes); err != nil {
			return fmt.Errorf("failed to generate JWT refresh secret: %w", err)
		}
		jwtRefreshSecret = randomBytes
		log.Println("🔑 Generated random JWT refresh secret (set JWT_REFRESH_SECRET env var for production)")
	} else {
		jwtRefreshSecret = []byte(refreshSecret)
		log.Println("🔑 Using JWT refresh secret from environment")
	}

	return nil
}

// generateSessionTokens generates an access/refresh token pair for a new
// session. The session id doubles as the access token's jti, so the
// session registry and token validation agree on session identity.
func generateSessionTokens(user *User, sessionID string) (SessionPayload, error) {
	now := time.Now()
	accessExpiration := now.Add(jwtExpiration)
	refreshExpirationTime := now.Add(refreshExpiration)

	accessClaims := &Claims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(accessExpiration),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   user.ID,
			ID:        sessionID,
		},
	}

	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims)
	accessTokenString, err := accessToken.SignedString(jwtSecret)
	if err != nil {
		return SessionPayload{}, err
	}

	refreshClaims := &Claims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(refreshExpirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   user.ID,
			ID:        uuid.New().String(),
		},
	}

	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims)
	refreshTokenString, err := refreshToken.SignedString(jwtRefreshSecret)
	if err != nil {
		return SessionPayload{}, err
	}

	return SessionPayload{
		ID:           sessionID,
		AccessToken:  accessTokenString,
		RefreshToken: refreshTokenString,
		ExpiresAt:    accessExpiration.Unix(),
	}, nil
}

// validateToken validates a JWT token
func validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		claims, ok := token.Claims.(*Claims)
		if !ok {
			return nil, errors.New("invalid token claims")
		}

		// Use appropriate secret based on token type
		if claims.TokenType == "refresh" {
			return jwtRefreshSecret, nil
		}
		return jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// Extract token from Authorization header
func extractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("authorization header required")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("invalid authorization header format")
	}

	return parts[1], nil
}

// Password Functions

// validatePasswordComplexity validates password complexity requirements
func validatePasswordComplexity(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters long")
	}

	if len(password) > 128 {
		return errors.New("password too long (max 128 characters)")
	}

	var (
		hasUpper  = regexp.MustCompile(`[A-Z]`).MatchString(password)
		hasLower  = regexp.MustCompile(`[a-z]`).MatchString(password)
		hasNumber = regexp.MustCompile(`[0-9]`).MatchString(password)
	)

	missing := []string{}
	if !hasUpper {
		missing = append(missing, "uppercase letter")
	}
	if !hasLower {
		missing = append(missing, "lowercase letter")
	}
	if !hasNumber {
		missing = append(missing, "number")
	}

	if len(missing) > 0 {
		return fmt.Errorf("password must contain: %s", strings.Join(missing, ", "))
	}

	return nil
}

// hashPassword hashes a password using bcrypt
func hashPassword(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedPassword), nil
}

// comparePassword compares a password with its hash
func comparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// dummyPasswordHash is compared against when an account lookup fails,
// so an unknown email costs the same bcrypt work as a wrong password
// and the two cannot be told apart by response time.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Helper function to validate email format
func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}

	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	if !emailRegex.MatchString(email) {
		return errors.New("invalid email format")
	}

	if len(email) > 254 {
		return errors.New("email too long")
	}

	return nil
}
