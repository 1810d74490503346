package internal_test

import (
	"testing"

	"github.com/programme-lv/sandbox/internal"
	"github.com/stretchr/testify/assert"
)

func TestWorsePrecedence(t *testing.T) {
	order := []internal.Verdict{
		internal.Accepted,
		internal.WrongAnswer,
		internal.RuntimeError,
		internal.TimeLimitExceeded,
		internal.CompileError,
	}
	for i, lo := range order {
		for _, hi := range order[i:] {
			assert.Equal(t, hi, internal.Worse(lo, hi))
			assert.Equal(t, hi, internal.Worse(hi, lo))
		}
	}
}

func TestFatal(t *testing.T) {
	assert.True(t, internal.TimeLimitExceeded.Fatal())
	assert.True(t, internal.RuntimeError.Fatal())
	assert.True(t, internal.CompileError.Fatal())
	assert.False(t, internal.WrongAnswer.Fatal())
	assert.False(t, internal.Accepted.Fatal())
}
