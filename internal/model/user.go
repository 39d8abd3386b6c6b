package model

import "time"

// User represents an application user record as stored in the
// `users` table.  Accounts are created either with an email/password
// pair or lazily on first wallet login, in which case PasswordHash is
// empty and WalletAddress carries the normalized (lower-cased) address.
// The json tags are omitted here because these structs are primarily
// used internally by the repository layer; handlers define separate
// response types with appropriate JSON tags.
//
// Fields:
//
//	ID            – primary key identifier of the user.
//	Email         – unique email address (empty for wallet-only accounts).
//	PasswordHash  – bcrypt hashed password (empty for wallet-only accounts).
//	WalletAddress – unique wallet address (empty for email accounts).
//	Name          – display name printed on gate responses.
//	Role          – role name (CUSTOMER, ORGANIZER or ADMIN).
//	IsActive      – whether the account is active.
//	CreatedAt     – timestamp of creation.
//	UpdatedAt     – timestamp of last update.
type User struct {
	ID            uint64    // users.id
	Email         string    // users.email (unique, nullable)
	PasswordHash  string    // users.password_hash
	WalletAddress string    // users.wallet_address (unique, nullable)
	Name          string    // users.name
	Role          string    // users.role
	IsActive      bool      // users.is_active
	CreatedAt     time.Time // users.created_at
	UpdatedAt     time.Time // users.updated_at
}

// Roles accepted in the JWT "role" claim.
const (
	RoleCustomer  = "CUSTOMER"
	RoleOrganizer = "ORGANIZER"
	RoleAdmin     = "ADMIN"
)

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to a user and contains metadata for expiry and
// revocation.  The plain token is not stored; only its SHA-256 hash.
//
// Fields:
//
//	ID        – primary key identifier.
//	UserID    – owner of the session.
//	TokenHash – SHA-256 hash of the raw token.
//	ExpiresAt – expiry timestamp (UTC).
//	RevokedAt – set when the session is terminated early.
//	CreatedAt – creation timestamp.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
