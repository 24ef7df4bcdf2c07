package ticket

import (
	"crypto/hmac"
	"crypto/sha256"
)

// Keyring signs with the active secret and verifies against the active
// secret plus any prior secrets, so tickets issued before a key
// rotation stay valid until they expire.
type Keyring struct {
	active []byte
	prior  [][]byte
}

// NewKeyring normalizes each secret to 32 bytes via SHA-256. Empty
// prior secrets are skipped so config can pass the env value through
// unconditionally.
func NewKeyring(active string, prior ...string) *Keyring {
	kr := &Keyring{active: normalizeSecret(active)}
	for _, p := range prior {
		if p == "" {
			continue
		}
		kr.prior = append(kr.prior, normalizeSecret(p))
	}
	return kr
}

func normalizeSecret(secret string) []byte {
	hashed := sha256.Sum256([]byte(secret))
	return hashed[:]
}

// Sign computes an HMAC-SHA256 over the exact payload bytes.
func (k *Keyring) Sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, k.active)
	mac.Write(payload)
	return mac.Sum(nil)
}

// Verify checks the signature against the active secret first, then
// each prior secret. hmac.Equal is constant time.
func (k *Keyring) Verify(payload, signature []byte) bool {
	if verifyWithKey(payload, signature, k.active) {
		return true
	}
	for _, key := range k.prior {
		if verifyWithKey(payload, signature, key) {
			return true
		}
	}
	return false
}

func verifyWithKey(payload, signature, key []byte) bool {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hmac.Equal(signature, mac.Sum(nil))
}
