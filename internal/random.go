package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"strings"
)

// Crockford-style alphabet: no 0/1/I/L/O/U, so codes survive being read
// aloud or retyped from paper.
const backupCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTVWXYZ"

const backupCodeGroupLen = 5

// NewBackupCode returns a human-transcribable one-time code of the form
// XXXXX-XXXXX.
func NewBackupCode() (string, error) {
	var b strings.Builder
	b.Grow(backupCodeGroupLen*2 + 1)

	for group := 0; group < 2; group++ {
		if group > 0 {
			b.WriteByte('-')
		}
		chars, err := randomChars(backupCodeGroupLen)
		if err != nil {
			return "", err
		}
		b.WriteString(chars)
	}

	return b.String(), nil
}

// NewBackupCodes generates n distinct backup codes.
func NewBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	seen := make(map[string]struct{}, n)

	for len(codes) < n {
		code, err := NewBackupCode()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	return codes, nil
}

// HashCode returns the storage digest of a backup code. Comparison is
// exact and case-sensitive; plaintext codes are never persisted.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

func randomChars(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	out := make([]byte, n)
	for i, v := range raw {
		out[i] = backupCodeAlphabet[int(v)%len(backupCodeAlphabet)]
	}
	return string(out), nil
}
