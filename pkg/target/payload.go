package target

import (
	"fmt"
	"strings"
)

const (
	// MaxUploadTier is the largest payload tier; tier k carries k*UploadTierSize symbols.
	MaxUploadTier  = 4
	UploadTierSize = 200 * 1024

	uploadAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Rand is the randomness source for payload generation. *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

// UploadPayloads builds one payload per tier 1..MaxUploadTier and repeats each
// retryCount times before moving to the next tier. A payload is the tag
// "content{k}=" followed by k*UploadTierSize symbols drawn uniformly from the alphabet.
func UploadPayloads(rnd Rand, retryCount int) []string {
	payloads := make([]string, 0, MaxUploadTier*max(retryCount, 0))
	for tier := 1; tier <= MaxUploadTier; tier++ {
		payload := uploadPayload(rnd, tier)
		for i := 0; i < retryCount; i++ {
			payloads = append(payloads, payload)
		}
	}
	return payloads
}

func uploadPayload(rnd Rand, tier int) string {
	tag := fmt.Sprintf("content%d=", tier)
	size := tier * UploadTierSize

	var b strings.Builder
	b.Grow(len(tag) + size)
	b.WriteString(tag)
	for i := 0; i < size; i++ {
		b.WriteByte(uploadAlphabet[rnd.IntN(len(uploadAlphabet))])
	}
	return b.String()
}
