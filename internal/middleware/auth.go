package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when the user/password pair does not match.
var ErrInvalidCredentials = errors.New("invalid username or password")

// HashPassword uses bcrypt to hash a plaintext password.
func HashPassword(plain string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a bcrypt hash with the plaintext.
func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// IsHash reports whether s already looks like a bcrypt hash.
func IsHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// BasicAuth guards the API with a single admin account.
type BasicAuth struct {
	user   string
	hash   string
	exempt map[string]bool
}

// NewBasicAuth accepts the admin password either as a bcrypt hash or in
// plain text, which is hashed once here.
func NewBasicAuth(user, password string, exempt ...string) (*BasicAuth, error) {
	if user == "" || password == "" {
		return nil, errors.New("basic auth needs both a user and a password")
	}
	hash := password
	if !IsHash(password) {
		var err error
		if hash, err = HashPassword(password); err != nil {
			return nil, err
		}
	}
	a := &BasicAuth{user: user, hash: hash, exempt: make(map[string]bool, len(exempt))}
	for _, p := range exempt {
		a.exempt[p] = true
	}
	return a, nil
}

// Verify checks a user/password pair.
func (a *BasicAuth) Verify(user, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.user)) == 1
	// Always run bcrypt so timing does not reveal the user name.
	passOK := CheckPassword(a.hash, password)
	if !userOK || !passOK {
		return ErrInvalidCredentials
	}
	return nil
}

// Wrap rejects requests without valid credentials.
func (a *BasicAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.exempt[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || a.Verify(user, pass) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="adhan"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
