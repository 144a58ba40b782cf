package payment

import (
	"encoding/base64"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const dataURIPrefix = "data:image/png;base64,"

// QRCodePNG returns the charge's QR image, rendering one from the copy-paste
// code when the provider sent no image.
func QRCodePNG(c *Charge) ([]byte, error) {
	if c.QRCodeBase64 != "" {
		raw := strings.TrimPrefix(c.QRCodeBase64, dataURIPrefix)
		img, err := base64.StdEncoding.DecodeString(raw)
		if err == nil {
			return img, nil
		}
	}
	if c.QRCode == "" {
		return nil, fmt.Errorf("charge %s has no qr code", c.ID)
	}
	return qrcode.Encode(c.QRCode, qrcode.Medium, 320)
}
