package optin

import (
	"crypto/rand"
	"math/big"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// DefaultTokenLength is the number of characters in a generated token.
	DefaultTokenLength = 24
	// TokenAlphabet leaves out 0, O, o, 1, I and l.
	TokenAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"
)

// RandomTokenGenerator draws characters uniformly from Alphabet.
type RandomTokenGenerator struct {
	Length   int
	Alphabet string
}

// NewTokenGenerator returns a generator for DefaultTokenLength tokens over TokenAlphabet.
func NewTokenGenerator() *RandomTokenGenerator {
	return &RandomTokenGenerator{
		Length:   DefaultTokenLength,
		Alphabet: TokenAlphabet,
	}
}

// Generate implements TokenGenerator.
func (g *RandomTokenGenerator) Generate() (string, error) {
	length := g.Length
	if length <= 0 {
		length = DefaultTokenLength
	}

	alphabet := g.Alphabet
	if alphabet == "" {
		alphabet = TokenAlphabet
	}

	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read random source for token")
		}
		out[i] = alphabet[n.Int64()]
	}

	return string(out), nil
}

// TokenGeneratorFunc adapts a function to the TokenGenerator interface.
type TokenGeneratorFunc func() (string, error)

// Generate implements TokenGenerator.
func (f TokenGeneratorFunc) Generate() (string, error) {
	return f()
}
