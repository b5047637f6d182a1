package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SHA256Hex returns the hex SHA-256 digest of data
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashText returns the hex SHA-256 digest of a UTF-8 string
func HashText(s string) string {
	return SHA256Hex([]byte(s))
}

// NewRunID returns an identifier of the form run_<unix-millis>_<12 hex chars>
func NewRunID(now time.Time) string {
	return newID("run", now)
}

// NewBatchID returns an identifier of the form batch_<unix-millis>_<12 hex chars>
func NewBatchID(now time.Time) string {
	return newID("batch", now)
}

func newID(prefix string, now time.Time) string {
	u := uuid.New()
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), hex.EncodeToString(u[:6]))
}
