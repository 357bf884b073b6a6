package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCache_Unreachable(t *testing.T) {
	// Port 1 refuses connections on any sane test host.
	_, err := NewCache(Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)

	_, err = NewPubSub(Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
