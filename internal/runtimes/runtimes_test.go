package runtimes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/mvcam/mvs"
	"github.com/nasa-jpl/mvcam/sim"
)

func TestSelectMock(t *testing.T) {
	rt, err := Select(true)
	require.NoError(t, err)
	assert.IsType(t, &sim.Runtime{}, rt)
	assert.Equal(t, sim.Version, rt.Version())
}

func TestSelectHardware(t *testing.T) {
	rt, err := Select(false)
	if !mvs.Available {
		assert.ErrorIs(t, err, mvs.ErrNotBuilt)
		assert.Nil(t, rt)
		return
	}
	require.NoError(t, err)
	assert.IsType(t, &mvs.Runtime{}, rt)
}
