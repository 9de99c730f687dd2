// Package chain holds the on-chain collaborators: agent minting, payment
// execution over the x402 rail, and balance queries against Movement RPC.
package chain

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/nero-labs/internal/shared"
)

// IDs generates payment record ids, transaction hashes and token ids.
type IDs struct{}

// PaymentID returns prefix + "-" + six uppercase alphanumerics.
func (IDs) PaymentID(prefix string) string {
	return prefix + "-" + shared.RandomUpper(6)
}

// TxHash returns a 0x-prefixed 32-byte hex hash.
func TxHash() string {
	return "0x" + shared.RandomHex(32)
}

// TokenID returns an agent token id such as nero_1735689600000_k3j9x0a2b.
func TokenID(now time.Time) string {
	return fmt.Sprintf("nero_%d_%s", now.UnixMilli(), strings.ToLower(shared.RandomUpper(9)))
}
