package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateOrderCode composes a UTC timestamp with a random suffix.
// Uniqueness is enforced by the orders table; callers regenerate on
// collision.
func GenerateOrderCode() (string, error) {
	max := big.NewInt(10000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ATL-%s-%04d", time.Now().UTC().Format("20060102150405"), n.Int64()), nil
}
