package eventlog

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// computeRowHash computes HMAC-SHA256(key, prevHash|ts|clusterTag|component|state|detail|correlationID).
// Returns "" when key is nil (chain disabled). Adapted from the teacher's
// internal/audit/chain.go computeRowHash, same formula shape over the
// transition event's fields instead of an audit command's.
func computeRowHash(key []byte, prevHash string, e TransitionEvent) string {
	if len(key) == 0 {
		return ""
	}
	msg := fmt.Sprintf("%s|%d|%s|%s|%s|%s|%s",
		prevHash,
		e.Timestamp,
		e.ClusterTag,
		e.Component,
		e.State,
		e.Detail,
		e.CorrelationID,
	)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}
