package cdr

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrSignatureMismatch is returned when a signature does not cover the record.
var ErrSignatureMismatch = errors.New("cdr: signature does not match record")

const algorithmHS256 = "HS256"

type signatureClaims struct {
	Digest string `json:"digest"`
	jwt.RegisteredClaims
}

// Signer issues and checks HS256 signatures over a record digest.
type Signer struct {
	secret []byte
	keyID  string
}

// NewSigner returns a signer for the shared secret.
func NewSigner(secret, keyID string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("cdr: signing secret is required")
	}
	return &Signer{secret: []byte(secret), keyID: keyID}, nil
}

// Digest is the hex sha256 of the record without its signatures.
func Digest(c *ChargeDetailRecord) (string, error) {
	data, err := json.Marshal(c.wire(false))
	if err != nil {
		return "", fmt.Errorf("cdr: encode for digest: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Sign signs the record and appends the signature to it.
func (s *Signer) Sign(c *ChargeDetailRecord) (Signature, error) {
	digest, err := Digest(c)
	if err != nil {
		return Signature{}, err
	}
	claims := signatureClaims{
		Digest: digest,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  string(c.SessionID),
			Issuer:   s.keyID,
			IssuedAt: jwt.NewNumericDate(time.Now().UTC()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	value, err := token.SignedString(s.secret)
	if err != nil {
		return Signature{}, fmt.Errorf("cdr: sign: %w", err)
	}
	sig := Signature{Algorithm: algorithmHS256, KeyID: s.keyID, Value: value}
	c.AddSignature(sig)
	return sig, nil
}

// Verify checks that sig was issued by this signer for the record's current content.
func (s *Signer) Verify(c *ChargeDetailRecord, sig Signature) error {
	if sig.Algorithm != algorithmHS256 {
		return fmt.Errorf("cdr: unsupported signature algorithm %q", sig.Algorithm)
	}
	token, err := jwt.ParseWithClaims(sig.Value, &signatureClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("cdr: unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return fmt.Errorf("cdr: verify: %w", err)
	}
	claims, ok := token.Claims.(*signatureClaims)
	if !ok || !token.Valid {
		return errors.New("cdr: invalid signature claims")
	}
	digest, err := Digest(c)
	if err != nil {
		return err
	}
	if claims.Digest != digest || claims.Subject != string(c.SessionID) {
		return ErrSignatureMismatch
	}
	return nil
}
