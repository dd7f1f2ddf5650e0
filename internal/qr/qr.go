// Package qr renders the QR codes printed for event guests.
package qr

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the edge of the rendered PNG in pixels.
const DefaultSize = 500

// PNG encodes content as a black on white QR code of size x size pixels.
func PNG(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("qr: empty content")
	}
	if size <= 0 {
		size = DefaultSize
	}
	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("qr: encode %q: %w", content, err)
	}
	buf, err := code.PNG(size)
	if err != nil {
		return nil, fmt.Errorf("qr: render png: %w", err)
	}
	return buf, nil
}

// DataURL is PNG as a data:image/png;base64 URL.
func DataURL(content string, size int) (string, error) {
	buf, err := PNG(content, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf), nil
}
