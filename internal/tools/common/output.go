package common

import (
	"encoding/json"
	"io"
	"time"
)

// CIResult is the machine-readable summary printed by --ci runs.
type CIResult struct {
	OK         bool     `json:"ok"`
	Title      string   `json:"title"`
	DurationMS int64    `json:"durationMs"`
	Details    []string `json:"details,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func NewCIResult(title string, details []string, err error, elapsed time.Duration) CIResult {
	result := CIResult{OK: err == nil, Title: title, DurationMS: elapsed.Milliseconds(), Details: details}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

func WriteCIResult(w io.Writer, result CIResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
