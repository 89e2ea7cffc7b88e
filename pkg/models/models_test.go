package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatformConnectionConnected(t *testing.T) {
	cases := []struct {
		name      string
		url       string
		connected bool
	}{
		{"https url", "https://instagram.com/acme", true},
		{"http url", "http://facebook.com/acmepage", true},
		{"empty", "", false},
		{"no scheme", "instagram.com/acme", false},
		{"scheme only", "https://", false},
		{"garbage", "::not a url::", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := PlatformConnection{Platform: PlatformInstagram, ProfileURL: tc.url, HasAccount: HasAccountYes}
			assert.Equal(t, tc.connected, c.Connected())
		})
	}
}

func TestJobStatusTerminal(t *testing.T) {
	assert.True(t, JobStatusDone.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusQueued.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
}
