package runcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachePublishFetch(t *testing.T) {
	c := New()
	c.Publish(KeyHypervisorAZ, map[string]string{"cc1": "melbourne-qh2"})

	v, err := c.Fetch(KeyHypervisorAZ)
	require.NoError(t, err)
	assert.Equal(t, "melbourne-qh2", v.(map[string]string)["cc1"])
}

func TestCacheFetchMissing(t *testing.T) {
	c := New()
	_, err := c.Fetch(KeyHasInstance)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachePublishOverwrites(t *testing.T) {
	c := New()
	c.Publish(KeyHasInstance, 1)
	c.Publish(KeyHasInstance, 2)

	v, err := c.Fetch(KeyHasInstance)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestCacheReset(t *testing.T) {
	c := New()
	c.Publish(KeyHasInstance, 1)
	c.Reset()

	_, err := c.Fetch(KeyHasInstance)
	assert.ErrorIs(t, err, ErrNotFound)
}
