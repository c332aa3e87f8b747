package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(run_id|date|code|side)
// Returns hex-encoded hash (64 characters).
//
// The run holds at most one trade per (date, code, side), so the inputs
// identify a trade uniquely and re-running a config reproduces the same IDs.
func ComputeTradeID(runID string, date time.Time, code, side string) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		runID,
		date.UTC().Format("2006-01-02"),
		code,
		side,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
