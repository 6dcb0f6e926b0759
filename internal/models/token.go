package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lib/pq"
)

// MCP token scopes.
const (
	ScopeMCPRead  = "mcp:read"
	ScopeMCPWrite = "mcp:write"

	MCPTokenPrefix = "mcp_"
	MCPTokenType   = "mcp"
)

// APIToken is the stored metadata of an issued MCP token. The token itself is never stored.
type APIToken struct {
	ID         string         `db:"id" json:"id"`
	UserID     string         `db:"user_id" json:"-"`
	Name       string         `db:"name" json:"name"`
	TokenID    string         `db:"token_id" json:"-"`
	Scopes     pq.StringArray `db:"scopes" json:"scopes"`
	ExpiresAt  time.Time      `db:"expires_at" json:"expires_at"`
	RevokedAt  *time.Time     `db:"revoked_at" json:"revoked_at"`
	LastUsedAt *time.Time     `db:"last_used_at" json:"last_used_at"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// HasScope reports whether the token grants scope.
func (t *APIToken) HasScope(scope string) bool {
	for _, s := range t.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// MCPClaims is the JWT payload of an MCP token.
type MCPClaims struct {
	Scopes []string `json:"scopes"`
	Type   string   `json:"typ"`
	jwt.RegisteredClaims
}

// CreateMCPTokenRequest is the body of POST /api/mcp-tokens.
type CreateMCPTokenRequest struct {
	Name          string   `json:"name" validate:"required,max=200"`
	Scopes        []string `json:"scopes"`
	ExpiresInDays *int     `json:"expires_in_days"`
}

// CreateMCPTokenResponse carries the one-time token and its metadata.
type CreateMCPTokenResponse struct {
	Token    string    `json:"token"`
	Metadata *APIToken `json:"metadata"`
}
