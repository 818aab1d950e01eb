package game

import (
	crand "crypto/rand"
	"math/big"
	"math/rand/v2"
)

const (
	// CodeLength is the length of generated game codes.
	CodeLength = 6

	// CodeChars excludes characters that are easy to misread aloud.
	CodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// NewGameCode returns a random join code.
func NewGameCode() string {
	code := make([]byte, CodeLength)
	for i := range CodeLength {
		n, err := crand.Int(crand.Reader, big.NewInt(int64(len(CodeChars))))
		if err != nil {
			code[i] = CodeChars[rand.IntN(len(CodeChars))]
			continue
		}
		code[i] = CodeChars[n.Int64()]
	}
	return string(code)
}
