// Package attestation signs external-facing receipts of a CheckEngine
// verdict so a collaborator across a process boundary (the wire codec layer
// this repo excludes) can carry a verifiable record of a Check/Allowed call
// without re-deriving it. Grounded on the teacher's credential signing
// service: an RSA private key, JWT claims, a result struct carrying the
// signed token.
package attestation

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/overlaytrust/timeline/internal/timelinemodel"
)

// Receipt is the result of attesting a verdict.
type Receipt struct {
	Token     string    `json:"token"`
	KeyID     string    `json:"key_id"`
	Algorithm string    `json:"algorithm"`
	Issued    time.Time `json:"issued"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Attestor signs and verifies verdict receipts with an RSA private key.
type Attestor struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	keyID      string
	issuer     string
	ttl        time.Duration
}

// New builds an Attestor. publicKey may be nil if this process only ever
// signs and never verifies.
func New(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, keyID, issuer string, ttl time.Duration) *Attestor {
	return &Attestor{privateKey: privateKey, publicKey: publicKey, keyID: keyID, issuer: issuer, ttl: ttl}
}

// proofDigest hashes a proof chain into a short, stable fingerprint so the
// receipt can be compact without embedding full message payloads.
func proofDigest(proofs []*timelinemodel.MessageImpl) string {
	h := sha256.New()
	for _, p := range proofs {
		if p == nil {
			continue
		}
		fmt.Fprintf(h, "%s|%d|%x;", p.Meta.Name, p.GlobalTime, p.Signer.Key)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Attest signs a receipt over a verdict: the member and message checked, the
// global_time of the check, the outcome, and a digest of the proof chain.
func (a *Attestor) Attest(member timelinemodel.Member, messageName string, globalTime uint64, allowed bool, proofs []*timelinemodel.MessageImpl) (*Receipt, error) {
	if a.privateKey == nil {
		return nil, fmt.Errorf("attestation: no RSA private key configured for signing")
	}

	now := time.Now()
	expiresAt := now.Add(a.ttl)

	claims := jwt.MapClaims{
		"iss":          a.issuer,
		"iat":          now.Unix(),
		"exp":          expiresAt.Unix(),
		"member":       member.String(),
		"message_name": messageName,
		"global_time":  globalTime,
		"allowed":      allowed,
		"proof_digest": proofDigest(proofs),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = a.keyID

	signed, err := token.SignedString(a.privateKey)
	if err != nil {
		return nil, fmt.Errorf("attestation: sign receipt: %w", err)
	}

	return &Receipt{
		Token:     signed,
		KeyID:     a.keyID,
		Algorithm: "RS256",
		Issued:    now,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks a receipt's signature and expiry, returning its claims.
func (a *Attestor) Verify(token string) (jwt.MapClaims, error) {
	if a.publicKey == nil {
		return nil, fmt.Errorf("attestation: no RSA public key configured for verification")
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("attestation: unexpected signing method %v", t.Header["alg"])
		}
		return a.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("attestation: verify receipt: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("attestation: invalid receipt")
	}
	return claims, nil
}
