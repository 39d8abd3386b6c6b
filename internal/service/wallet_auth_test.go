package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// fakeVerifier accepts any signature equal to "sig:"+message.
type fakeVerifier struct {
	err error
}

func (v *fakeVerifier) Verify(_, message, sig string) (bool, error) {
	if v.err != nil {
		return false, v.err
	}
	return sig == "sig:"+message, nil
}

// fakeNonceStore remembers consumed nonces in memory.
type fakeNonceStore struct {
	seen map[string]bool
}

func (f *fakeNonceStore) Consume(_ context.Context, nonce string, _ time.Duration) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[nonce] {
		return false, nil
	}
	f.seen[nonce] = true
	return true, nil
}

type fakeWalletUsers struct {
	created map[string]model.User
	nextID  uint64
}

func (f *fakeWalletUsers) FindOrCreateByWallet(_ context.Context, address string) (model.User, error) {
	if f.created == nil {
		f.created = map[string]model.User{}
	}
	if u, ok := f.created[address]; ok {
		return u, nil
	}
	f.nextID++
	u := model.User{ID: f.nextID, WalletAddress: address, Role: model.RoleCustomer}
	f.created[address] = u
	return u, nil
}

func newWalletFixture() (*WalletAuthService, *fakeNonceStore, *fakeWalletUsers) {
	nonces := &fakeNonceStore{}
	users := &fakeWalletUsers{}
	svc := NewWalletAuthService(&fakeVerifier{}, nonces, users, 30*time.Minute)
	return svc, nonces, users
}

// signedInput turns a challenge into the login input a well-behaved
// client would send.
func signedInput(ch *LoginChallenge) WalletLoginInput {
	return WalletLoginInput{
		Address:   ch.Address,
		Nonce:     ch.Nonce,
		IssuedAt:  ch.IssuedAt,
		Message:   ch.Message,
		Signature: "sig:" + ch.Message,
	}
}

func TestWalletLoginHappyPath(t *testing.T) {
	svc, _, _ := newWalletFixture()

	ch, err := svc.Challenge("0xABCDef")
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef", ch.Address, "addresses are normalized to lower case")
	assert.NotEmpty(t, ch.Nonce)

	u, err := svc.Login(context.Background(), signedInput(ch))
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef", u.WalletAddress)
	assert.Equal(t, model.RoleCustomer, u.Role)
}

func TestWalletLoginIsFirstLoginRegistration(t *testing.T) {
	svc, _, users := newWalletFixture()

	ch, err := svc.Challenge("0xaaa")
	require.NoError(t, err)
	u1, err := svc.Login(context.Background(), signedInput(ch))
	require.NoError(t, err)

	ch2, err := svc.Challenge("0xaaa")
	require.NoError(t, err)
	u2, err := svc.Login(context.Background(), signedInput(ch2))
	require.NoError(t, err)

	assert.Equal(t, u1.ID, u2.ID, "same wallet resolves to the same account")
	assert.Len(t, users.created, 1)
}

func TestWalletLoginReplayRejected(t *testing.T) {
	svc, _, _ := newWalletFixture()

	ch, err := svc.Challenge("0xbbb")
	require.NoError(t, err)
	in := signedInput(ch)

	_, err = svc.Login(context.Background(), in)
	require.NoError(t, err)

	// Byte-for-byte identical request captured in flight.
	_, err = svc.Login(context.Background(), in)
	assert.ErrorIs(t, err, ErrNonceReplayed)
}

func TestWalletLoginTamperedMessage(t *testing.T) {
	svc, _, _ := newWalletFixture()

	ch, err := svc.Challenge("0xccc")
	require.NoError(t, err)
	in := signedInput(ch)
	in.Message = in.Message + "?"

	_, err = svc.Login(context.Background(), in)
	assert.ErrorIs(t, err, ErrBadChallenge)
}

func TestWalletLoginBadSignature(t *testing.T) {
	svc, _, _ := newWalletFixture()

	ch, err := svc.Challenge("0xddd")
	require.NoError(t, err)
	in := signedInput(ch)
	in.Signature = "sig:something-else"

	_, err = svc.Login(context.Background(), in)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestWalletLoginStaleTimestampDoesNotBurnNonce(t *testing.T) {
	svc, nonces, _ := newWalletFixture()

	ch, err := svc.Challenge("0xeee")
	require.NoError(t, err)

	// Rebuild the message around a timestamp outside the window; the
	// signature over it is otherwise valid.
	stale := time.Now().UTC().Add(-time.Hour).Unix()
	msg := fmt.Sprintf(loginMessageFormat, ch.Address, ch.Nonce, stale)
	_, err = svc.Login(context.Background(), WalletLoginInput{
		Address:   ch.Address,
		Nonce:     ch.Nonce,
		IssuedAt:  stale,
		Message:   msg,
		Signature: "sig:" + msg,
	})
	assert.ErrorIs(t, err, ErrChallengeExpired)
	assert.False(t, nonces.seen[ch.Nonce], "expiry must be checked before the nonce is consumed")

	// A fresh, valid login with the same nonce still works.
	_, err = svc.Login(context.Background(), signedInput(ch))
	assert.NoError(t, err)
}

func TestWalletLoginEmptyNonceRejected(t *testing.T) {
	svc, _, _ := newWalletFixture()

	now := time.Now().UTC().Unix()
	msg := fmt.Sprintf(loginMessageFormat, "0xfff", "", now)
	_, err := svc.Login(context.Background(), WalletLoginInput{
		Address:   "0xfff",
		Nonce:     "",
		IssuedAt:  now,
		Message:   msg,
		Signature: "sig:" + msg,
	})
	assert.ErrorIs(t, err, ErrBadChallenge)
}

func TestChallengeRequiresAddress(t *testing.T) {
	svc, _, _ := newWalletFixture()
	_, err := svc.Challenge("   ")
	assert.ErrorIs(t, err, ErrBadChallenge)
}
