package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

// SecretSize is the byte length of a refresh secret (256 bits).
const SecretSize = 32

const credentialRawSize = 16 + SecretSize

// ErrCredentialMalformed is returned when a refresh credential fails to
// decode.
var ErrCredentialMalformed = errors.New("malformed refresh credential")

// Secret is a raw refresh secret. It is deliberately not a JWT: an
// opaque random value hashed before storage cannot leak claims through
// logs or client-side decoding.
type Secret [SecretSize]byte

// NewRefreshSecret draws a fresh 256-bit refresh secret.
func NewRefreshSecret() (Secret, error) {
	var s Secret
	_, err := rand.Read(s[:])
	return s, err
}

// HashSecret is the deterministic one-way digest used to store and
// compare refresh secrets. The raw secret is never persisted.
func HashSecret(s Secret) [32]byte {
	return sha256.Sum256(s[:])
}

// EncodeRefreshCredential packs a family ID and refresh secret into the
// opaque wire value handed to clients: base64url(familyID || secret).
func EncodeRefreshCredential(familyID uuid.UUID, secret Secret) string {
	var raw [credentialRawSize]byte
	copy(raw[:16], familyID[:])
	copy(raw[16:], secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// DecodeRefreshCredential reverses EncodeRefreshCredential, rejecting
// any credential of the wrong shape before it touches the store.
func DecodeRefreshCredential(credential string) (uuid.UUID, Secret, error) {
	var secret Secret

	raw, err := base64.RawURLEncoding.DecodeString(credential)
	if err != nil {
		return uuid.UUID{}, secret, ErrCredentialMalformed
	}
	if len(raw) != credentialRawSize {
		return uuid.UUID{}, secret, ErrCredentialMalformed
	}

	var familyID uuid.UUID
	copy(familyID[:], raw[:16])
	copy(secret[:], raw[16:])
	return familyID, secret, nil
}
