package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint derives a device fingerprint from the user agent plus any
// optional client-reported signals. Signal order does not affect the
// result. The value is only ever compared for equality; it carries no
// cryptographic trust on its own.
func Fingerprint(userAgent string, signals ...string) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(userAgent)))

	sorted := append([]string(nil), signals...)
	sort.Strings(sorted)
	for _, s := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(strings.TrimSpace(s)))
	}

	return hex.EncodeToString(h.Sum(nil))
}
