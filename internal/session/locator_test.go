package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocatorClassify(t *testing.T) {
	l, err := NewLocator([]string{"*accounts.google.com*"}, []string{"*colab.research.google.com*"})
	require.NoError(t, err)

	tests := []struct {
		location string
		want     Landing
	}{
		{"https://colab.research.google.com/drive/abc", LandingTarget},
		{"https://COLAB.research.google.com/drive/abc", LandingTarget},
		{"https://accounts.google.com/signin", LandingLogin},
		{loginURL, LandingLogin},
		{"https://www.google.com/", LandingUnknown},
		{"", LandingUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Classify(tt.location))
		})
	}
}

func TestLocatorRejectsBadPattern(t *testing.T) {
	_, err := NewLocator([]string{"[unclosed"}, nil)
	assert.Error(t, err)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "awaiting_authentication", AwaitingAuthentication.String())
	assert.True(t, Failed.Terminal())
	assert.False(t, Degraded.Terminal())
}
