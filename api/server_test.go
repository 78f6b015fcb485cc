package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewServerRequiresDependencies(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}
