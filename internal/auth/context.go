package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Common auth errors.
var (
	ErrTokenRequired = errors.New("bearer token required")
	ErrTokenInvalid  = errors.New("bearer token is not a valid JWT")
	ErrTokenExpired  = errors.New("bearer token has expired")
)

// Claims are the fields the agent reads from the student's token. The
// issuer is the school backend; the agent never verifies the signature.
type Claims struct {
	jwt.RegisteredClaims
	ID        model.ID `json:"id,omitempty"`
	UserID    model.ID `json:"user_id,omitempty"`
	Name      string   `json:"name,omitempty"`
	Role      string   `json:"role,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
}

// Context carries the bearer token and what was decoded from it. It is
// built once at startup and passed explicitly to everything that talks to
// the backend.
type Context struct {
	token  string
	claims Claims
	now    func() time.Time
}

// NewContext decodes token. A "Bearer " prefix is tolerated.
func NewContext(token string) (*Context, error) {
	token = strings.TrimSpace(token)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return nil, ErrTokenRequired
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	return &Context{token: token, claims: claims, now: time.Now}, nil
}

// Token returns the raw bearer token.
func (c *Context) Token() string { return c.token }

// Claims returns the decoded claims.
func (c *Context) Claims() Claims { return c.claims }

// Subject returns the best available user identifier.
func (c *Context) Subject() string {
	switch {
	case c.claims.ID != "":
		return c.claims.ID.String()
	case c.claims.UserID != "":
		return c.claims.UserID.String()
	default:
		return c.claims.Subject
	}
}

// Role returns the role claim, falling back to the token type.
func (c *Context) Role() string {
	if c.claims.Role != "" {
		return c.claims.Role
	}
	return c.claims.TokenType
}

// ExpiresAt returns the expiry, or the zero time for tokens without exp.
func (c *Context) ExpiresAt() time.Time {
	if c.claims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.claims.ExpiresAt.Time
}

// Valid returns ErrTokenExpired once the token's exp has passed.
func (c *Context) Valid() error {
	exp := c.ExpiresAt()
	if !exp.IsZero() && !c.now().Before(exp) {
		return ErrTokenExpired
	}
	return nil
}
