package service

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/SinaHo/community-gate-bot/internal/model"
)

const (
	minOperand = 1
	maxOperand = 9
)

// ChallengeGenerator produces a fresh challenge on every call.
type ChallengeGenerator interface {
	Generate() model.Challenge
}

type sumChallengeGenerator struct{}

// NewChallengeGenerator returns a generator of "<a> + <b> = ?" challenges
// with operands drawn uniformly from 1..9.
func NewChallengeGenerator() ChallengeGenerator {
	return sumChallengeGenerator{}
}

func (sumChallengeGenerator) Generate() model.Challenge {
	a := minOperand + rand.Intn(maxOperand-minOperand+1)
	b := minOperand + rand.Intn(maxOperand-minOperand+1)
	return SumChallenge(a, b)
}

// SumChallenge builds the challenge for a + b.
func SumChallenge(a, b int) model.Challenge {
	return model.Challenge{
		Question: fmt.Sprintf("%d + %d = ?", a, b),
		Answer:   strconv.Itoa(a + b),
	}
}
