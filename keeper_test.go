package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigArg(t *testing.T) {
	assert.Equal(t, "/etc/k.yaml", configArg([]string{"run", "--config", "/etc/k.yaml"}))
	assert.Equal(t, "k.yaml", configArg([]string{"--config=k.yaml", "status"}))
	assert.Empty(t, configArg([]string{"login", "--verify"}))
	assert.Empty(t, configArg([]string{"--", "--config", "x"}))
	assert.Empty(t, configArg([]string{"--config"}))
}
