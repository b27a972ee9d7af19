package utils

import (
	"testing"

	"github.com/notargets/vadd/device"
	"github.com/notargets/vadd/device/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRuntime(t *testing.T) {
	rt, err := OpenRuntime("host")
	require.NoError(t, err)
	assert.Equal(t, "host", rt.Name())

	_, err = OpenRuntime("no-such-backend")
	assert.ErrorIs(t, err, device.ErrUnknownBackend)
}

func TestCreateTestRuntime(t *testing.T) {
	rt := CreateTestRuntime("no-such-backend", "host")
	assert.Equal(t, "host", rt.Name())
	_, ok := rt.(*host.Runtime)
	assert.True(t, ok)

	assert.Panics(t, func() { CreateTestRuntime("no-such-backend") })
}
