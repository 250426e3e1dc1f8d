package harness

import (
	"fmt"
	"math"

	cdppage "github.com/chromedp/cdproto/page"
)

// ImageFormat is the encoding of a screenshot.
type ImageFormat string

// Supported screenshot formats.
const (
	ImageFormatPNG  ImageFormat = "png"
	ImageFormatJPEG ImageFormat = "jpeg"
)

const jpegQuality = 80

// Screenshot captures the visible part of the session's page.
func (s *Session) Screenshot(format ImageFormat) ([]byte, error) {
	capture := cdppage.CaptureScreenshot()
	switch format {
	case ImageFormatPNG, "":
		capture = capture.WithFormat(cdppage.CaptureScreenshotFormatPng)
	case ImageFormatJPEG:
		capture = capture.WithFormat(cdppage.CaptureScreenshotFormatJpeg).WithQuality(jpegQuality)
	default:
		return nil, fmt.Errorf("unsupported screenshot format %q", format)
	}

	_, _, _, _, visual, _, err := cdppage.GetLayoutMetrics().Do(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("getting layout metrics for screenshot: %w", err)
	}
	if visual != nil && visual.ClientWidth > 0 && visual.ClientHeight > 0 {
		capture = capture.WithClip(&cdppage.Viewport{
			X:      visual.PageX,
			Y:      visual.PageY,
			Width:  math.Ceil(visual.ClientWidth),
			Height: math.Ceil(visual.ClientHeight),
			Scale:  1,
		})
	}

	buf, err := capture.Do(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}

	return buf, nil
}
