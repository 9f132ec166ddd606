// Package xid generates prefixed row identifiers for application-created
// records (users, shops, products, cart items, invoices).
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns an id like "inv-1693459200123456789-9f86d081884c7d65". The
// nanosecond timestamp keeps ids roughly ordered by creation; the random
// suffix keeps concurrent inserts from colliding.
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
