package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a prefixed unique id, e.g. "PROD-9f3c...".
func New(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return fmt.Sprintf("%s-%s", strings.ToUpper(prefix), id)
}

// Token returns an opaque bearer token: 32 random bytes, hex encoded.
func Token() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("tok-%d-%s", time.Now().UnixNano(), uuid.NewString())
	}
	return hex.EncodeToString(buf)
}
