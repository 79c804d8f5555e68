package utils

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

const (
	trackingCodeMin = 100000
	trackingCodeMax = 1000000 // exclusive
)

// GenerateTrackingCode returns a uniformly random six digit code.
func GenerateTrackingCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(trackingCodeMax-trackingCodeMin))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+trackingCodeMin, 10), nil
}

// RandomIndex returns a uniformly random index in [0, n).
func RandomIndex(n int) (int, error) {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(i.Int64()), nil
}

// HashSecret derives the stable lookup key stored for a buyer secret.
func HashSecret(secret string) string {
	sum := blake2b.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
