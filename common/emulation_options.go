package common

import (
	"errors"
	"fmt"
	"strconv"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/mailru/easyjson/jlexer"
)

// SafariIPhoneUserAgent is the user agent of Safari 11 on iOS.
const SafariIPhoneUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 11_0 like Mac OS X) " +
	"AppleWebKit/604.1.38 (KHTML, like Gecko) Version/11.0 Mobile/15A372 Safari/604.1"

// Geolocation represents a geolocation.
type Geolocation struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Accuracy  float64 `json:"accuracy" yaml:"accuracy"`
}

// Validate validates the geolocation.
func (g *Geolocation) Validate() error {
	if g == nil {
		return nil // nothing to validate
	}

	if g.Accuracy < 0 {
		return fmt.Errorf(`invalid accuracy "%.2f": precondition 0 <= ACCURACY failed`, g.Accuracy)
	}
	if g.Latitude < -90 || g.Latitude > 90 {
		return fmt.Errorf(`invalid latitude "%.2f": precondition -90 <= LATITUDE <= 90 failed`, g.Latitude)
	}
	if g.Longitude < -180 || g.Longitude > 180 {
		return fmt.Errorf(`invalid longitude "%.2f": precondition -180 <= LONGITUDE <= 180 failed`, g.Longitude)
	}

	return nil
}

func (g Geolocation) String() string {
	return fmt.Sprintf("lat:%v long:%v accuracy:%v", g.Latitude, g.Longitude, g.Accuracy)
}

// Viewport is the size of the emulated screen in CSS pixels.
type Viewport struct {
	Width  int64 `json:"width" yaml:"width"`
	Height int64 `json:"height" yaml:"height"`
}

// Device describes an emulated device.
type Device struct {
	Name              string   `json:"name" yaml:"name"`
	UserAgent         string   `json:"userAgent" yaml:"userAgent"`
	Viewport          Viewport `json:"viewport" yaml:"viewport"`
	DeviceScaleFactor float64  `json:"deviceScaleFactor" yaml:"deviceScaleFactor"`
	IsMobile          bool     `json:"isMobile" yaml:"isMobile"`
}

// IPhoneX is an iPhone X running Safari 11.
func IPhoneX() Device {
	return Device{
		Name:              "iPhone X",
		UserAgent:         SafariIPhoneUserAgent,
		Viewport:          Viewport{Width: 375, Height: 812},
		DeviceScaleFactor: 3,
		IsMobile:          true,
	}
}

// Validate validates the device.
func (d *Device) Validate() error {
	if d.UserAgent == "" {
		return errors.New("user agent is required")
	}
	if d.Viewport.Width <= 0 || d.Viewport.Height <= 0 {
		return fmt.Errorf("invalid viewport %dx%d: width and height must be positive",
			d.Viewport.Width, d.Viewport.Height)
	}
	if d.DeviceScaleFactor <= 0 {
		return fmt.Errorf(`invalid device scale factor "%.2f": must be positive`, d.DeviceScaleFactor)
	}

	return nil
}

// ParsePermissions converts permission names, such as "geolocation", to
// their CDP type. Unknown names are an error.
func ParsePermissions(names ...string) ([]cdpbrowser.PermissionType, error) {
	perms := make([]cdpbrowser.PermissionType, 0, len(names))
	for _, n := range names {
		var p cdpbrowser.PermissionType
		l := jlexer.Lexer{Data: []byte(strconv.Quote(n))}
		p.UnmarshalEasyJSON(&l)
		if err := l.Error(); err != nil {
			return nil, fmt.Errorf("parsing permission %q: %w", n, err)
		}
		perms = append(perms, p)
	}

	return perms, nil
}
