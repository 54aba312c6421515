package ids

import (
	"encoding/binary"
	"encoding/hex"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var objectIDPattern = regexp.MustCompile(`^[0-9a-f]{24}$`)

// NewObjectID returns a 24 hex character id: 4 bytes of unix seconds followed
// by 8 random bytes, so ids sort roughly by creation time.
func NewObjectID() string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[:4], uint32(time.Now().Unix()))
	u := uuid.New()
	copy(b[4:], u[:8])
	return hex.EncodeToString(b[:])
}

func IsObjectID(s string) bool {
	return objectIDPattern.MatchString(s)
}

// NewOrderID returns a caller-assigned idempotency key with the given prefix.
func NewOrderID(prefix string) string {
	return prefix + NewObjectID()
}
