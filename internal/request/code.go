package request

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codeAlphabet drops 0/O and 1/I so codes survive being read aloud at a kiosk.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 6

type CodeGenerator interface {
	Generate() (string, error)
}

type RandomCodeGenerator struct {
	Prefix string
}

func NewRandomCodeGenerator(prefix string) *RandomCodeGenerator {
	if prefix == "" {
		prefix = "M10"
	}
	return &RandomCodeGenerator{Prefix: prefix}
}

func (g *RandomCodeGenerator) Generate() (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate payment code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return g.Prefix + "-" + string(buf), nil
}
