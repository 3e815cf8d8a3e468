package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const codeSpace = 1_000_000

// CodeGenerator returns a fresh six digit code.
type CodeGenerator func() (string, error)

// GenerateCode draws uniformly from 000000..999999.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
