package common

import (
	"testing"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeolocationValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		geo     *Geolocation
		wantErr string
	}{
		{name: "nil"},
		{name: "london", geo: &Geolocation{Latitude: 51.5055, Longitude: 0.0754, Accuracy: 1}},
		{name: "agra", geo: &Geolocation{Latitude: 27.1751, Longitude: 78.0421, Accuracy: 1}},
		{name: "accuracy", geo: &Geolocation{Accuracy: -1}, wantErr: "invalid accuracy"},
		{name: "latitude", geo: &Geolocation{Latitude: 91}, wantErr: "invalid latitude"},
		{name: "longitude", geo: &Geolocation{Longitude: -181}, wantErr: "invalid longitude"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.geo.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestDeviceValidate(t *testing.T) {
	t.Parallel()

	d := IPhoneX()
	require.NoError(t, d.Validate())
	assert.Equal(t, Viewport{Width: 375, Height: 812}, d.Viewport)
	assert.Equal(t, 3.0, d.DeviceScaleFactor)
	assert.True(t, d.IsMobile)

	d.Viewport.Width = 0
	assert.ErrorContains(t, d.Validate(), "invalid viewport")

	d = IPhoneX()
	d.DeviceScaleFactor = 0
	assert.ErrorContains(t, d.Validate(), "invalid device scale factor")

	d = IPhoneX()
	d.UserAgent = ""
	assert.ErrorContains(t, d.Validate(), "user agent")
}

func TestParsePermissions(t *testing.T) {
	t.Parallel()

	perms, err := ParsePermissions("geolocation", "notifications")
	require.NoError(t, err)
	assert.Equal(t, []cdpbrowser.PermissionType{
		cdpbrowser.PermissionTypeGeolocation,
		cdpbrowser.PermissionTypeNotifications,
	}, perms)

	_, err = ParsePermissions("teleportation")
	assert.ErrorContains(t, err, `parsing permission "teleportation"`)
}
