package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSweepLockTTL(t *testing.T) {
	assert.Equal(t, 2*time.Hour, sweepLockTTL(time.Hour))
	assert.Equal(t, 20*time.Minute, sweepLockTTL(10*time.Minute))
	assert.Equal(t, time.Minute, sweepLockTTL(5*time.Second))
	assert.Greater(t, sweepLockTTL(30*time.Minute), 30*time.Minute)
}
