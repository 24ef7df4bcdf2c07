package ticket

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

// Renderer rasterizes a signed token into a QR code PNG. Medium error
// correction tolerates partial occlusion and glare at the door.
type Renderer struct {
	level qrcode.RecoveryLevel
}

func NewRenderer() *Renderer {
	return &Renderer{level: qrcode.Medium}
}

// Render is a pure function of (token, size): the same inputs always
// produce the same PNG bytes.
func (r *Renderer) Render(token string, sizePx int) ([]byte, error) {
	if sizePx <= 0 {
		return nil, fmt.Errorf("invalid QR size %d", sizePx)
	}
	png, err := qrcode.Encode(token, r.level, sizePx)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR: %w", err)
	}
	return png, nil
}

// Filename returns the stable client-side download name for a ticket.
func (r *Renderer) Filename(confirmationCode string) string {
	return fmt.Sprintf("ticket-%s.png", confirmationCode)
}
