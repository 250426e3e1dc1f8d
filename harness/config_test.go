package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigParseEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     map[string]string
		want    func(t *testing.T, c Config)
		wantErr string
	}{
		{
			name: "defaults",
			want: func(t *testing.T, c Config) {
				t.Helper()
				assert.Equal(t, 3*time.Second, c.WaitTimeout)
				assert.Equal(t, 30*time.Second, c.NavigationTimeout)
				assert.Equal(t, 100*time.Millisecond, c.PollInterval)
				assert.Empty(t, c.WSURL)
				assert.True(t, c.Launch.IsHeadless())
			},
		},
		{
			name: "overrides",
			env: map[string]string{
				"DEVTOOLS_WAIT_TIMEOUT":       "5s",
				"DEVTOOLS_NAVIGATION_TIMEOUT": "1m",
				"DEVTOOLS_WS_URL":             "ws://127.0.0.1:9222/devtools/browser/x",
				"DEVTOOLS_HEADLESS":           "false",
			},
			want: func(t *testing.T, c Config) {
				t.Helper()
				assert.Equal(t, 5*time.Second, c.WaitTimeout)
				assert.Equal(t, time.Minute, c.NavigationTimeout)
				assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/x", c.WSURL)
				assert.False(t, c.Launch.IsHeadless())
			},
		},
		{
			name:    "bad_duration",
			env:     map[string]string{"DEVTOOLS_WAIT_TIMEOUT": "3"},
			wantErr: "parsing DEVTOOLS_WAIT_TIMEOUT",
		},
		{
			name:    "zero_duration",
			env:     map[string]string{"DEVTOOLS_NAVIGATION_TIMEOUT": "0s"},
			wantErr: "navigation timeout must be positive",
		},
		{
			name:    "launch_options",
			env:     map[string]string{"DEVTOOLS_TIMEOUT": "x"},
			wantErr: "parsing DEVTOOLS_TIMEOUT",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewConfig()
			err := c.ParseEnv(func(k string) (string, bool) {
				v, ok := tt.env[k]
				return v, ok
			})
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.want(t, c)
		})
	}
}
