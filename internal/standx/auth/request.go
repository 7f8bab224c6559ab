package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

const (
	SignVersion = "v1"

	HeaderSignVersion = "x-request-sign-version"
	HeaderRequestID   = "x-request-id"
	HeaderTimestamp   = "x-request-timestamp"
	HeaderSignature   = "x-request-signature"
)

// RequestSigner holds the ed25519 key that signs order entry bodies.
type RequestSigner struct {
	key ed25519.PrivateKey
	now func() time.Time
	id  func() string
}

// GenerateRequestSigner creates an ephemeral key for a wallet session.
func GenerateRequestSigner() (*RequestSigner, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return newRequestSigner(key), nil
}

func NewRequestSigner(seed []byte) (*RequestSigner, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return newRequestSigner(ed25519.NewKeyFromSeed(seed)), nil
}

func newRequestSigner(key ed25519.PrivateKey) *RequestSigner {
	return &RequestSigner{key: key, now: time.Now, id: uuid.NewString}
}

// RequestID is the base58 public key the auth host binds the session to.
func (s *RequestSigner) RequestID() string {
	return base58.Encode(s.key.Public().(ed25519.PublicKey))
}

func (s *RequestSigner) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Sign returns the base64 signature over "v1,{id},{ts},{body}".
func (s *RequestSigner) Sign(requestID string, timestampMS int64, body []byte) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.key, SigningPayload(requestID, timestampMS, body)))
}

// Apply sets the signature headers for body on h.
func (s *RequestSigner) Apply(h http.Header, body []byte) {
	requestID := s.id()
	ts := s.now().UnixMilli()
	h.Set(HeaderSignVersion, SignVersion)
	h.Set(HeaderRequestID, requestID)
	h.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	h.Set(HeaderSignature, s.Sign(requestID, ts, body))
}

func SigningPayload(requestID string, timestampMS int64, body []byte) []byte {
	prefix := SignVersion + "," + requestID + "," + strconv.FormatInt(timestampMS, 10) + ","
	return append([]byte(prefix), body...)
}

// DecodeSigningKey accepts a 32 byte ed25519 seed encoded as hex, base64 or
// base58, tried in that order.
func DecodeSigningKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("signing key is empty")
	}
	if b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x")); err == nil && len(b) == ed25519.SeedSize {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil && len(b) == ed25519.SeedSize {
		return b, nil
	}
	if b, err := base58.Decode(raw); err == nil && len(b) == ed25519.SeedSize {
		return b, nil
	}
	return nil, errors.New("signing key must decode to 32 bytes from hex, base64 or base58")
}
