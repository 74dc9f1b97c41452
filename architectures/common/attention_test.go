package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindowBand(t *testing.T) {
	band := WindowBand(5, 1)
	want := []float32{
		1, 1, 0, 0, 0,
		1, 1, 1, 0, 0,
		0, 1, 1, 1, 0,
		0, 0, 1, 1, 1,
		0, 0, 0, 1, 1,
	}
	assert.Equal(t, want, band)
}

func TestWindowBand_WiderThanSequence(t *testing.T) {
	band := WindowBand(3, 256)
	for i, v := range band {
		assert.Equal(t, float32(1), v, "position %d should be inside the window", i)
	}
}

func TestWindowBand_Symmetric(t *testing.T) {
	const seqLen = 9
	band := WindowBand(seqLen, 2)
	for i := 0; i < seqLen; i++ {
		for j := 0; j < seqLen; j++ {
			assert.Equal(t, band[i*seqLen+j], band[j*seqLen+i], "band[%d][%d]", i, j)
		}
	}
}
