package service

import (
	"encoding/base64"
	"fmt"
	"log/slog"

	qrcode "github.com/skip2/go-qrcode"
)

// QRService renders session URLs as QR codes for the receiver page.
type QRService struct {
	size int
}

func NewQRService(size int) *QRService {
	if size <= 0 {
		size = 256
	}
	return &QRService{size: size}
}

// DataURL encodes the given URL as a PNG QR code and returns it as a
// data URL ready for an <img> tag.
func (s *QRService) DataURL(url string) (string, error) {
	png, err := qrcode.Encode(url, qrcode.Medium, s.size)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrQRGeneration, err)
	}

	slog.Debug("qr code generated", "url_length", len(url), "size", s.size)
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
