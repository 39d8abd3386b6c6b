package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPSignatureVerifier delegates signature checks to an external
// verifier service over HTTP.  Chain-specific cryptography lives in
// that service; this backend only needs a yes/no answer.
type HTTPSignatureVerifier struct {
	URL    string
	Client *http.Client
}

// NewHTTPSignatureVerifier builds a verifier posting to the given URL.
func NewHTTPSignatureVerifier(url string) *HTTPSignatureVerifier {
	return &HTTPSignatureVerifier{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

type verifyReq struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}
type verifyResp struct {
	Valid bool `json:"valid"`
}

// Verify implements SignatureVerifier.
func (v *HTTPSignatureVerifier) Verify(address, message, sig string) (bool, error) {
	body, err := json.Marshal(verifyReq{Address: address, Message: message, Signature: sig})
	if err != nil {
		return false, err
	}
	resp, err := v.Client.Post(v.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("verifier returned status %d", resp.StatusCode)
	}
	var out verifyResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

// DisabledVerifier rejects every signature.  It is wired when no
// verifier URL is configured so wallet login fails closed instead of
// open.
type DisabledVerifier struct{}

// Verify implements SignatureVerifier.
func (DisabledVerifier) Verify(string, string, string) (bool, error) {
	return false, nil
}
