// Package auth holds password hashing, session tokens and the
// registration rules shared by the web handlers and the adduser CLI.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinUsernameLength is the shortest accepted username.
	MinUsernameLength = 3
	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 6
	// MaxPasswordBytes is the bcrypt input limit.
	MaxPasswordBytes = 72
	// tokenBytes is the session token size before hex encoding.
	tokenBytes = 32
)

// Registration errors. Their messages are shown to users verbatim.
var (
	ErrMissingFields    = errors.New("Please fill in all fields!")
	ErrShortUsername    = errors.New("Username must be at least 3 characters!")
	ErrShortPassword    = errors.New("Password must be at least 6 characters!")
	ErrLongPassword     = errors.New("Password must be at most 72 bytes!")
	ErrPasswordMismatch = errors.New("Passwords do not match!")
	ErrUsernameTaken    = errors.New("Username already exists!")
	ErrEmailTaken       = errors.New("Email already registered!")
)

// ErrInvalidCredentials is reported for both unknown usernames and wrong
// passwords.
var ErrInvalidCredentials = errors.New("Invalid username or password!")

// HashPassword returns a salted bcrypt hash of password. Passwords longer
// than MaxPasswordBytes fail with ErrLongPassword.
func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrLongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateSessionToken returns a random hex encoded session token.
func GenerateSessionToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Registration is the user supplied sign-up form.
type Registration struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// Normalize trims surrounding whitespace from the username and email.
func (r *Registration) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
}

// Validate checks the field rules. Uniqueness is checked against storage
// by the caller.
func (r Registration) Validate() error {
	if r.Username == "" || r.Email == "" || r.Password == "" || r.ConfirmPassword == "" {
		return ErrMissingFields
	}
	if utf8.RuneCountInString(r.Username) < MinUsernameLength {
		return ErrShortUsername
	}
	if utf8.RuneCountInString(r.Password) < MinPasswordLength {
		return ErrShortPassword
	}
	if len(r.Password) > MaxPasswordBytes {
		return ErrLongPassword
	}
	if r.Password != r.ConfirmPassword {
		return ErrPasswordMismatch
	}
	return nil
}
