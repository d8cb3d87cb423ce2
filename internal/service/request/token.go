package request

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

const (
	AlgES256K = "ES256K"

	tokenPartCount = 3
	maxTokenLength = 256 * 1024 // contract deploys carry the full code body
)

var (
	ErrInvalidToken     = errors.New("invalid request token")
	ErrSignatureInvalid = errors.New("request token signature verification failed")
)

// Token is a decoded request token. Verified is set only after the ES256K
// signature checked out against the public key carried in the payload.
type Token struct {
	Raw      string
	Header   map[string]any
	Payload  json.RawMessage
	Verified bool
}

// DecodeToken splits and base64url-decodes the token without verifying it.
func DecodeToken(raw string) (*Token, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty token: %w", ErrInvalidToken)
	}
	if len(raw) > maxTokenLength {
		return nil, fmt.Errorf("token exceeds %d bytes: %w", maxTokenLength, ErrInvalidToken)
	}
	parts := strings.Split(raw, ".")
	if len(parts) != tokenPartCount {
		return nil, fmt.Errorf("token must have %d parts: %w", tokenPartCount, ErrInvalidToken)
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("decode header: %w", ErrInvalidToken)
	}
	var header map[string]any
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("unmarshal header: %w", ErrInvalidToken)
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", ErrInvalidToken)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("payload is not JSON: %w", ErrInvalidToken)
	}

	return &Token{Raw: raw, Header: header, Payload: payload}, nil
}

// Verify checks the ES256K signature over header.payload with the compressed
// public key (hex) found in the payload.
func (t *Token) Verify(publicKeyHex string) error {
	if alg, _ := t.Header["alg"].(string); alg != AlgES256K {
		return fmt.Errorf("algorithm %q not allowed: %w", alg, ErrSignatureInvalid)
	}
	keyBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return fmt.Errorf("public key hex: %w", ErrSignatureInvalid)
	}
	pub, err := btcec.ParsePubKey(keyBytes)
	if err != nil {
		return fmt.Errorf("public key: %w", ErrSignatureInvalid)
	}

	parts := strings.Split(t.Raw, ".")
	sigBytes, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil || len(sigBytes) != 64 {
		return fmt.Errorf("signature encoding: %w", ErrSignatureInvalid)
	}
	var r, s btcec.ModNScalar
	if overflow := r.SetByteSlice(sigBytes[:32]); overflow || r.IsZero() {
		return fmt.Errorf("signature r: %w", ErrSignatureInvalid)
	}
	if overflow := s.SetByteSlice(sigBytes[32:]); overflow || s.IsZero() {
		return fmt.Errorf("signature s: %w", ErrSignatureInvalid)
	}

	digest := sha256.Sum256([]byte(parts[0] + "." + parts[1]))
	if !ecdsa.NewSignature(&r, &s).Verify(digest[:], pub) {
		return ErrSignatureInvalid
	}
	t.Verified = true
	return nil
}

// SignToken produces an ES256K request token, as an app would send it.
func SignToken(payload any, priv *btcec.PrivateKey) (string, error) {
	headerJSON, err := json.Marshal(map[string]string{"typ": "JWT", "alg": AlgES256K})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." +
		base64.RawURLEncoding.EncodeToString(payloadJSON)

	digest := sha256.Sum256([]byte(signingInput))
	compact := ecdsa.SignCompact(priv, digest[:], true)
	// JOSE 格式只保留 r ‖ s
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(compact[1:]), nil
}
