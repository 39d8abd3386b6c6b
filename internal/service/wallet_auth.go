package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// loginMessageFormat is the exact message a wallet must sign.  The
// server reconstructs it from the submitted fields and refuses any
// message that differs byte for byte, so a signature can never be
// replayed against different parameters.
const loginMessageFormat = "event-ticketing login\naddress: %s\nnonce: %s\nissued-at: %d"

// challengeWindow bounds how far the signed issued-at timestamp may lie
// from server time, in either direction.
const challengeWindow = 5 * time.Minute

// SignatureVerifier checks that sig is a valid signature over message
// by the private key behind address.  Implementations are
// chain-specific and injected at wiring time.
type SignatureVerifier interface {
	Verify(address, message, sig string) (bool, error)
}

// NonceStore consumes single-use login nonces.  Consume returns false
// when the nonce was seen before within the retention window.
type NonceStore interface {
	Consume(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

// WalletUserStore resolves wallet addresses to accounts, creating one
// on first login.
type WalletUserStore interface {
	FindOrCreateByWallet(ctx context.Context, address string) (model.User, error)
}

// LoginChallenge is handed to the client, which signs Message with the
// wallet key and posts the pieces back.
type LoginChallenge struct {
	Address  string `json:"address"`
	Nonce    string `json:"nonce"`
	IssuedAt int64  `json:"issued_at"`
	Message  string `json:"message"`
}

// WalletLoginInput is the signed challenge coming back from the
// client.
type WalletLoginInput struct {
	Address   string
	Nonce     string
	IssuedAt  int64
	Message   string
	Signature string
}

// WalletAuthService implements signature-based login for wallet
// holders.  The replay guard is a single-use nonce consumed atomically
// in Redis: a captured login request replayed later fails on the nonce
// even when its signature and timestamp would still check out.
type WalletAuthService struct {
	verifier SignatureVerifier
	nonces   NonceStore
	users    WalletUserStore
	nonceTTL time.Duration
}

// NewWalletAuthService constructs a WalletAuthService.  nonceTTL is
// how long consumed nonces are remembered; it must comfortably exceed
// challengeWindow or a replay could slip in after the nonce record
// expires.
func NewWalletAuthService(verifier SignatureVerifier, nonces NonceStore, users WalletUserStore, nonceTTL time.Duration) *WalletAuthService {
	if verifier == nil || nonces == nil || users == nil {
		panic("nil dependency passed to NewWalletAuthService")
	}
	if nonceTTL < challengeWindow {
		nonceTTL = 2 * challengeWindow
	}
	return &WalletAuthService{verifier: verifier, nonces: nonces, users: users, nonceTTL: nonceTTL}
}

// Challenge issues a fresh challenge for an address.  The server keeps
// no state here; everything needed to verify comes back inside the
// signed message.
func (s *WalletAuthService) Challenge(address string) (*LoginChallenge, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return nil, ErrBadChallenge
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	nonce := hex.EncodeToString(buf)
	issuedAt := time.Now().UTC().Unix()
	return &LoginChallenge{
		Address:  address,
		Nonce:    nonce,
		IssuedAt: issuedAt,
		Message:  fmt.Sprintf(loginMessageFormat, address, nonce, issuedAt),
	}, nil
}

// Login verifies a signed challenge and resolves (or creates) the
// account for the address.  Check order matters: format, then
// freshness, then signature, then nonce.  The nonce is consumed last
// so a request failing on a stale timestamp does not burn the nonce,
// and a request failing on the nonce has already proven key
// possession.
func (s *WalletAuthService) Login(ctx context.Context, in WalletLoginInput) (model.User, error) {
	address := strings.ToLower(strings.TrimSpace(in.Address))
	expected := fmt.Sprintf(loginMessageFormat, address, in.Nonce, in.IssuedAt)
	if in.Message != expected || in.Nonce == "" {
		return model.User{}, ErrBadChallenge
	}
	issued := time.Unix(in.IssuedAt, 0)
	now := time.Now().UTC()
	if issued.Before(now.Add(-challengeWindow)) || issued.After(now.Add(challengeWindow)) {
		return model.User{}, ErrChallengeExpired
	}
	ok, err := s.verifier.Verify(address, in.Message, in.Signature)
	if err != nil {
		return model.User{}, err
	}
	if !ok {
		return model.User{}, ErrBadSignature
	}
	fresh, err := s.nonces.Consume(ctx, in.Nonce, s.nonceTTL)
	if err != nil {
		return model.User{}, err
	}
	if !fresh {
		return model.User{}, ErrNonceReplayed
	}
	return s.users.FindOrCreateByWallet(ctx, address)
}
