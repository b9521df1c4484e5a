package stub

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"

	sessionCookie = "SESSIONID"
)

var (
	ErrMemberExists       = errors.New("member already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type member struct {
	Email string
	Role  string
	hash  []byte
}

// MemberStore is the in-memory member directory.
type MemberStore struct {
	mu      sync.Mutex
	members map[string]*member
}

func NewMemberStore() *MemberStore {
	return &MemberStore{members: make(map[string]*member)}
}

func (s *MemberStore) Register(email, password, role string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[email]; ok {
		return ErrMemberExists
	}
	s.members[email] = &member{Email: email, Role: role, hash: hash}
	return nil
}

func (s *MemberStore) Authenticate(email, password string) (*member, error) {
	s.mu.Lock()
	m, ok := s.members[email]
	s.mu.Unlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(m.hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return m, nil
}

type sessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// mintSession signs the session cookie value. The stub keeps sessions
// stateless: the cookie is a JWT carrying email and role.
func mintSession(secret []byte, email, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "milestone-stub",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	})
	return token.SignedString(secret)
}

func parseSession(secret []byte, cookie string) (email, role string, err error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(cookie, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", ErrInvalidCredentials
	}
	return claims.Email, claims.Role, nil
}

func sessionCookieFor(value string) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
	}
}

func expiredSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:   sessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	}
}
