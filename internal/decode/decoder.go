// Package decode finds barcodes in video frames and turns them into scan
// reports for software scanners.
package decode

import (
	"errors"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNotFound is returned when a frame contains no readable barcode.
var ErrNotFound = errors.New("no barcode found")

// Decoded is one barcode read from an image.
type Decoded struct {
	Text      string
	Raw       []byte
	Symbology string
}

// Decoder reads a barcode from an image.
type Decoder interface {
	Decode(img image.Image) (Decoded, error)
}

// ZXing decodes QR codes with gozxing. It is not safe for concurrent use.
type ZXing struct {
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

// NewZXing creates a QR decoder. tryHarder trades speed for accuracy on
// blurry or small codes.
func NewZXing(tryHarder bool) *ZXing {
	hints := map[gozxing.DecodeHintType]interface{}{}
	if tryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	return &ZXing{
		reader: qrcode.NewQRCodeReader(),
		hints:  hints,
	}
}

// Decode implements Decoder.
func (z *ZXing) Decode(img image.Image) (Decoded, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Decoded{}, fmt.Errorf("binarize frame: %w", err)
	}
	defer z.reader.Reset()

	result, err := z.reader.Decode(bmp, z.hints)
	if err != nil {
		switch err.(type) {
		case gozxing.NotFoundException, gozxing.ChecksumException, gozxing.FormatException:
			return Decoded{}, ErrNotFound
		}
		return Decoded{}, fmt.Errorf("decode qr code: %w", err)
	}

	// GetRawBytes holds the QR codewords, not the payload
	text := result.GetText()
	return Decoded{
		Text:      text,
		Raw:       []byte(text),
		Symbology: result.GetBarcodeFormat().String(),
	}, nil
}
