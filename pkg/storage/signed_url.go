package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// SignedURLSigner creates and validates signed URL tokens binding a subject
// (usually a user id) to a resource path.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// DeriveKey expands a root secret into an independent key for one purpose so a
// single configured secret never signs two kinds of token.
func DeriveKey(secret, purpose string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signing secret missing")
	}
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return "", fmt.Errorf("derive %s key: %w", purpose, err)
	}
	return hex.EncodeToString(key), nil
}

// Generate returns a signed token for subject and resource.
func (s *SignedURLSigner) Generate(subject, resource string) (string, time.Time, error) {
	if subject == "" || resource == "" {
		return "", time.Time{}, fmt.Errorf("subject and resource required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl)
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedSubject := base64.RawURLEncoding.EncodeToString([]byte(subject))
	encodedResource := base64.RawURLEncoding.EncodeToString([]byte(resource))
	signature := s.sign(encodedSubject, exp, encodedResource)
	token := strings.Join([]string{encodedSubject, exp, encodedResource, signature}, ".")
	return token, time.Unix(expiresAt.Unix(), 0), nil
}

// Parse validates a token and returns the embedded subject and resource.
func (s *SignedURLSigner) Parse(token string) (subject, resource string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", time.Time{}, fmt.Errorf("invalid token format")
	}
	encodedSubject, exp, encodedResource, signature := parts[0], parts[1], parts[2], parts[3]

	expected := s.sign(encodedSubject, exp, encodedResource)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", "", time.Time{}, fmt.Errorf("invalid token signature")
	}

	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("invalid timestamp")
	}
	expiresAt = time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return "", "", time.Time{}, fmt.Errorf("token expired")
	}

	rawSubject, err := base64.RawURLEncoding.DecodeString(encodedSubject)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("decode subject: %w", err)
	}
	rawResource, err := base64.RawURLEncoding.DecodeString(encodedResource)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("decode resource: %w", err)
	}
	return string(rawSubject), string(rawResource), expiresAt, nil
}

func (s *SignedURLSigner) sign(parts ...string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}
