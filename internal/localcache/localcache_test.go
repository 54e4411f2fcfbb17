package localcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_SetAndGet(t *testing.T) {
	c := New(time.Minute)
	c.Set("route:payments", "payments-route")

	v, ok := c.Get("route:payments")
	assert.True(t, ok)
	assert.Equal(t, "payments-route", v)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := New(time.Minute)
	c.SetTTL("route:payments", "payments-route", -time.Second)

	_, ok := c.Get("route:payments")
	assert.False(t, ok)
}

func TestCache_InvalidateAll(t *testing.T) {
	c := New(time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	assert.Equal(t, 2, c.Size())

	c.InvalidateAll()
	assert.Equal(t, 0, c.Size())
}

func TestCache_Invalidate(t *testing.T) {
	c := New(time.Minute)
	c.Set("a", 1)
	c.Invalidate("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
}
