package visitors

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// SessionKey builds the privacy-first session fingerprint. The inputs are
// hashed in a fixed order and the IP address is never stored, only hashed.
func SessionKey(ipAddress, userAgent, pid, salt string) string {
	data := strings.Join([]string{ipAddress, userAgent, pid, salt}, ".")
	hash := blake2b.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// DailySalt rotates the secret at midnight UTC so fingerprints cannot be
// linked across days.
func DailySalt(secret string, now time.Time) string {
	return now.UTC().Format("2006-01-02") + "-" + secret
}

// NewSessionID returns a random unsigned 64-bit id in decimal form.
func NewSessionID() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return strconv.FormatUint(binary.BigEndian.Uint64(b[:]), 10), nil
}
