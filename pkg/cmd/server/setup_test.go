package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckOrigin(t *testing.T) {
	check := checkOrigin([]string{"http://dashboard.local"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://dashboard.local", true},
		{"http://evil.local", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws/pi", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, check(r))
		})
	}
}

func TestSetupPublisher(t *testing.T) {
	saved := appConfig
	defer func() { appConfig = saved }()

	a := &app{}
	appConfig.CallbackURL = ""
	appConfig.NatsURL = ""
	require.NoError(t, setupPublisher(a))
	assert.Nil(t, a.publisher)

	appConfig.CallbackURL = "http://localhost:9000/api/ingest/enriched"
	require.NoError(t, setupPublisher(a))
	require.NotNil(t, a.publisher)
	a.Close()
}
