package rand

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/sirupsen/logrus"
)

const labelLetters = "abcdefghijklmnopqrstuvwxyz0123456789"

// Label returns a random string suitable for use as a DNS label:
// lowercase alphanumeric only.
func Label(n int) string {
	return secureRandomString(labelLetters, n)
}

// Hex returns n random bytes hex-encoded (2n characters).
func Hex(n int) string {
	return hex.EncodeToString(secureRandomBytes(n))
}

// secureRandomString returns a string of the requested length,
// made from the byte characters provided (only ASCII allowed).
// Uses crypto/rand for security. Will panic if len(availableCharBytes) > 256.
func secureRandomString(availableCharBytes string, length int) string {
	availableCharLength := len(availableCharBytes)
	if availableCharLength == 0 || availableCharLength > 256 {
		panic("availableCharBytes length must be greater than 0 and less than or equal to 256")
	}

	// Mask random bytes down to the smallest power of two covering the
	// alphabet, rejecting out-of-range indexes to keep the draw unbiased.
	var bitLength byte
	var bitMask byte
	for bits := availableCharLength - 1; bits != 0; {
		bits = bits >> 1
		bitLength++
	}
	bitMask = 1<<bitLength - 1

	bufferSize := length + length/3

	result := make([]byte, length)
	for i, j, randomBytes := 0, 0, []byte{}; i < length; j++ {
		if j%bufferSize == 0 {
			randomBytes = secureRandomBytes(bufferSize)
		}
		if idx := int(randomBytes[j%length] & bitMask); idx < availableCharLength {
			result[i] = availableCharBytes[idx]
			i++
		}
	}

	return string(result)
}

func secureRandomBytes(length int) []byte {
	var randomBytes = make([]byte, length)
	_, err := rand.Read(randomBytes)
	if err != nil {
		logrus.Fatal("Unable to generate random bytes")
	}
	return randomBytes
}
