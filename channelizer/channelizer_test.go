package channelizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigN(t *testing.T) {
	c := Config{L: 12288, M: 4097}
	assert.Equal(t, 16384, c.N())
}

func TestValidateRejectsMismatchedResponse(t *testing.T) {
	c := Config{L: 8, M: 3, Decimate: 1, Response: make([]complex128, 4)}
	err := c.Validate(nil)
	require.Error(t, err)
}

func TestValidateAcceptsMatchingResponse(t *testing.T) {
	c := Config{L: 8, M: 3, Decimate: 1, Response: make([]complex128, 10)}
	require.NoError(t, c.Validate(nil))
}

// mixComplex: DC and Nyquist pass through as scalars, and positive/negative
// bins are multiplied by the matching response bin, per spec.md §4.3.
func TestMixComplexDCAndSymmetricBins(t *testing.T) {
	n, d := 8, 2
	e := &Engine{cfg: Config{L: 4, M: 5, Decimate: d, Response: make([]complex128, n)}, nd: n / d}
	for i := range e.cfg.Response {
		e.cfg.Response[i] = complex(float64(i+1), 0)
	}
	x := make([]complex128, n)
	for i := range x {
		x[i] = complex(1, 0)
	}
	out := e.mixComplex(x)
	require.Len(t, out, n/d)
	assert.Equal(t, complex(1, 0), out[0], "DC scalar")
	assert.Equal(t, complex(2, 0), out[1], "positive bin 1 uses H[1]")
	assert.Equal(t, complex(8, 0), out[3], "negative bin uses H[N-1]")
	assert.Equal(t, complex(3, 0), out[2], "decimated Nyquist scalar uses H[Nd/2]")
}

func TestMixCrossConjProducesMirroredOutput(t *testing.T) {
	n, d := 8, 1
	e := &Engine{cfg: Config{L: 4, M: 5, Decimate: d, Response: make([]complex128, n)}, nd: n / d}
	for i := range e.cfg.Response {
		e.cfg.Response[i] = complex(1, 0)
	}
	x := make([]complex128, n)
	x[1] = complex(2, 1)
	x[n-1] = complex(3, -1)
	out := e.mixCrossConj(x)
	// out[1] = H_p*X_p + conj(H_n*X_n) = (2+1i) + conj(3-1i) = (2+1i)+(3+1i) = 5+2i
	assert.InDelta(t, 5, real(out[1]), 1e-9)
	assert.InDelta(t, 2, imag(out[1]), 1e-9)
	// out[n-1] = H_n*X_n - conj(H_p*X_p) = (3-1i) - conj(2+1i) = (3-1i)-(2-1i) = 1+0i
	assert.InDelta(t, 1, real(out[n-1]), 1e-9)
	assert.InDelta(t, 0, imag(out[n-1]), 1e-9)
}

func TestExecuteRejectsWrongBlockLength(t *testing.T) {
	e := &Engine{cfg: Config{L: 4, M: 3, Decimate: 1}, input: make([]complex128, 6)}
	_, err := e.Execute(make([]complex128, 3))
	require.Error(t, err)
}
