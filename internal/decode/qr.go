package decode

import (
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// RenderQR draws text as a black-on-white QR code of the given size. The
// fake backend uses it to synthesize scannable frames.
func RenderQR(text string, width, height int) (*image.Gray, error) {
	matrix, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, width, height, nil)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	img := image.NewGray(image.Rect(0, 0, width, height))
	mw, mh := matrix.GetWidth(), matrix.GetHeight()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(0xff)
			if x < mw && y < mh && matrix.Get(x, y) {
				v = 0
			}
			img.Pix[y*img.Stride+x] = v
		}
	}
	return img, nil
}
