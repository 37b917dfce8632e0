package session

const (
	trustBase          = 50
	trustDeviceMatch   = 30
	trustLocationMatch = 20
	trustLocationNew   = -20
	trustIPMatch       = 10

	trustMin = 0
	trustMax = 100
)

// TrustScore rates how consistent a candidate device context is with
// the user's prior sessions, on a 0-100 scale. It is a heuristic signal
// for downstream risk policy (step-up auth, notifications), never a
// hard gate. Revoked prior sessions contribute nothing: history from a
// context that was explicitly killed is not evidence of familiarity.
func TrustScore(candidate Device, prior []*Session) int {
	score := trustBase

	var deviceSeen, ipSeen bool
	locationKnownHistory := false
	locationSeen := false

	for _, s := range prior {
		if !s.RevokedAt.IsZero() {
			continue
		}
		if candidate.Fingerprint != "" && s.DeviceFingerprint == candidate.Fingerprint {
			deviceSeen = true
		}
		if candidate.IPAddress != "" && s.IPAddress == candidate.IPAddress {
			ipSeen = true
		}
		if s.Location != "" {
			locationKnownHistory = true
			if candidate.Location != "" && s.Location == candidate.Location {
				locationSeen = true
			}
		}
	}

	if deviceSeen {
		score += trustDeviceMatch
	}
	if candidate.Location != "" {
		switch {
		case locationSeen:
			score += trustLocationMatch
		case locationKnownHistory:
			// An unfamiliar location is penalized, not merely unrewarded.
			score += trustLocationNew
		}
	}
	if ipSeen {
		score += trustIPMatch
	}

	return clampTrust(score)
}

// IsNewLocation reports whether the candidate location has never been
// seen on a non-revoked prior session. Used to trigger out-of-band
// notification, independent of the trust score.
func IsNewLocation(candidate Device, prior []*Session) bool {
	if candidate.Location == "" {
		return false
	}
	for _, s := range prior {
		if !s.RevokedAt.IsZero() {
			continue
		}
		if s.Location == candidate.Location {
			return false
		}
	}
	return true
}

func clampTrust(score int) int {
	if score < trustMin {
		return trustMin
	}
	if score > trustMax {
		return trustMax
	}
	return score
}
