// Package credential encodes redeemable ticket credentials as signed,
// scannable QR payloads and decodes them at the entry gate.  The codec
// carries no authorization logic: whether a decoded credential is
// known, paid for or already used is the lifecycle service's job.  Its
// only contracts are lossless structured encode/decode and refusing to
// surface fields from a payload whose signature does not verify.
package credential

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrInvalidFormat is returned for payloads that are structurally
// malformed or carry a bad signature.  It is deliberately distinct
// from the lifecycle's "credential not recognized": a bad format means
// the scanned code was never issued by this system.
var ErrInvalidFormat = errors.New("invalid credential format")

// Payload is the structured record embedded in a QR credential.
type Payload struct {
	TicketSerial string `json:"ts"`
	OrderID      uint64 `json:"oid"`
	IssuedAt     int64  `json:"iat"`
}

// Credential couples the wire payload with its rendered QR image.
type Credential struct {
	TicketSerial string // serial of the admission unit
	Payload      string // signed wire string, also the QR content
	PNG          []byte // QR image, error-correction level High
}

// Codec signs and renders credentials with a server-held HMAC key.
type Codec struct {
	secret []byte
	// qrSize is the square pixel size of rendered images.
	qrSize int
}

// NewCodec returns a Codec signing with the given secret.  The secret
// must be non-empty; credentials leave the trusted backend and live on
// the buyer's device, so tamper evidence cannot be optional.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("credential: empty signing secret")
	}
	return &Codec{secret: []byte(secret), qrSize: 256}, nil
}

func (c *Codec) sign(body []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Encode produces a signed credential for one admission unit.  The
// wire format is base64url(JSON payload) + "." + base64url(HMAC-SHA256
// over the JSON bytes), rendered into a QR image at the highest
// error-correction level so the code survives partial damage or glare
// on a phone screen.
func (c *Codec) Encode(ticketSerial string, orderID uint64) (*Credential, error) {
	if ticketSerial == "" || orderID == 0 {
		return nil, errors.New("credential: serial and order id are required")
	}
	body, err := json.Marshal(Payload{
		TicketSerial: ticketSerial,
		OrderID:      orderID,
		IssuedAt:     time.Now().UTC().Unix(),
	})
	if err != nil {
		return nil, err
	}
	wire := base64.RawURLEncoding.EncodeToString(body) + "." + c.sign(body)
	png, err := qrcode.Encode(wire, qrcode.High, c.qrSize)
	if err != nil {
		return nil, err
	}
	return &Credential{TicketSerial: ticketSerial, Payload: wire, PNG: png}, nil
}

// Decode parses and verifies a wire payload scanned at the gate.  The
// signature is checked before any field is trusted; malformed input
// and signature mismatches both return ErrInvalidFormat so the gate
// cannot learn which half failed.
func (c *Codec) Decode(wire string) (*Payload, error) {
	parts := strings.Split(wire, ".")
	if len(parts) != 2 {
		return nil, ErrInvalidFormat
	}
	body, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidFormat
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidFormat
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, ErrInvalidFormat
	}
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, ErrInvalidFormat
	}
	if p.TicketSerial == "" || p.OrderID == 0 {
		return nil, ErrInvalidFormat
	}
	return &p, nil
}
