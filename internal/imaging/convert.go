// Package imaging converts platform bitmaps into tightly packed 8-bit RGBA
// buffers with premultiplied alpha.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"github.com/smazurov/qrgrabber/internal/platform"
)

// ErrUnsupportedFormat is returned for pixel formats with no decoder.
var ErrUnsupportedFormat = errors.New("unsupported pixel format")

// ToImage wraps or decodes bitmap data as an image.Image without copying
// where the layout allows it.
func ToImage(bm *platform.Bitmap) (image.Image, error) {
	if bm == nil {
		return nil, errors.New("nil bitmap")
	}
	if bm.Format != platform.PixelFormatMJPEG && (bm.Width <= 0 || bm.Height <= 0) {
		return nil, fmt.Errorf("invalid bitmap size %dx%d", bm.Width, bm.Height)
	}
	rect := image.Rect(0, 0, bm.Width, bm.Height)

	switch bm.Format {
	case platform.PixelFormatGray8:
		stride := strideOr(bm.Stride, bm.Width)
		if err := checkLen(bm.Data, stride*(bm.Height-1)+bm.Width); err != nil {
			return nil, err
		}
		return &image.Gray{Pix: bm.Data, Stride: stride, Rect: rect}, nil

	case platform.PixelFormatYUY2:
		return yuy2ToYCbCr(bm)

	case platform.PixelFormatNV12:
		return nv12ToYCbCr(bm)

	case platform.PixelFormatMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(bm.Data))
		if err != nil {
			return nil, fmt.Errorf("decode mjpeg frame: %w", err)
		}
		return img, nil

	case platform.PixelFormatRGBA8, platform.PixelFormatBGRA8:
		return fourChannel(bm)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, bm.Format)
	}
}

// ToRGBA converts bm into a tightly packed width*height*4 RGBA buffer with
// premultiplied alpha. The returned width and height are the decoded dimensions,
// which for MJPEG come from the stream rather than the bitmap header.
func ToRGBA(bm *platform.Bitmap) (pix []byte, width, height int, err error) {
	img, err := ToImage(bm)
	if err != nil {
		return nil, 0, 0, err
	}
	b := img.Bounds()
	width, height = b.Dx(), b.Dy()

	// Premultiplied data that is already tightly packed only needs a copy.
	if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == 4*width {
		out := make([]byte, 4*width*height)
		copy(out, rgba.Pix)
		return out, width, height, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst.Pix, width, height, nil
}

// Mirror flips a tightly packed RGBA buffer horizontally in place.
func Mirror(pix []byte, width, height int) {
	for y := 0; y < height; y++ {
		row := pix[y*width*4 : (y+1)*width*4]
		for l, r := 0, width-1; l < r; l, r = l+1, r-1 {
			a, b := row[l*4:l*4+4], row[r*4:r*4+4]
			a[0], b[0] = b[0], a[0]
			a[1], b[1] = b[1], a[1]
			a[2], b[2] = b[2], a[2]
			a[3], b[3] = b[3], a[3]
		}
	}
}

// RGBAImage wraps a tightly packed premultiplied buffer as an image.
func RGBAImage(pix []byte, width, height int) *image.RGBA {
	return &image.RGBA{Pix: pix, Stride: width * 4, Rect: image.Rect(0, 0, width, height)}
}

// fourChannel maps RGBA8/BGRA8 bitmaps onto image types that carry the
// right alpha semantics. image.RGBA is premultiplied, image.NRGBA straight.
func fourChannel(bm *platform.Bitmap) (image.Image, error) {
	stride := strideOr(bm.Stride, bm.Width*4)
	if err := checkLen(bm.Data, stride*(bm.Height-1)+bm.Width*4); err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, bm.Width, bm.Height)

	data := bm.Data
	if bm.Format == platform.PixelFormatBGRA8 {
		data = swapRB(bm.Data, bm.Width, bm.Height, stride)
	}
	if bm.Alpha == platform.AlphaModeIgnore {
		data = forceOpaque(data, bm.Width, bm.Height, stride, bm.Format == platform.PixelFormatBGRA8)
	}

	switch bm.Alpha {
	case platform.AlphaModePremultiplied:
		return &image.RGBA{Pix: data, Stride: stride, Rect: rect}, nil
	default:
		return &image.NRGBA{Pix: data, Stride: stride, Rect: rect}, nil
	}
}

func swapRB(src []byte, width, height, stride int) []byte {
	out := make([]byte, len(src))
	copy(out, src)
	for y := 0; y < height; y++ {
		row := out[y*stride : y*stride+width*4]
		for x := 0; x < len(row); x += 4 {
			row[x], row[x+2] = row[x+2], row[x]
		}
	}
	return out
}

// forceOpaque sets alpha to 0xff, copying unless the buffer is already a
// private copy.
func forceOpaque(src []byte, width, height, stride int, owned bool) []byte {
	out := src
	if !owned {
		out = make([]byte, len(src))
		copy(out, src)
	}
	for y := 0; y < height; y++ {
		row := out[y*stride : y*stride+width*4]
		for x := 3; x < len(row); x += 4 {
			row[x] = 0xff
		}
	}
	return out
}

func yuy2ToYCbCr(bm *platform.Bitmap) (image.Image, error) {
	if bm.Width%2 != 0 {
		return nil, fmt.Errorf("yuy2 width %d is not even", bm.Width)
	}
	stride := strideOr(bm.Stride, bm.Width*2)
	if err := checkLen(bm.Data, stride*(bm.Height-1)+bm.Width*2); err != nil {
		return nil, err
	}
	img := image.NewYCbCr(image.Rect(0, 0, bm.Width, bm.Height), image.YCbCrSubsampleRatio422)
	for y := 0; y < bm.Height; y++ {
		row := bm.Data[y*stride:]
		for x := 0; x < bm.Width; x += 2 {
			i := x * 2
			img.Y[y*img.YStride+x] = row[i]
			img.Y[y*img.YStride+x+1] = row[i+2]
			ci := y*img.CStride + x/2
			img.Cb[ci] = row[i+1]
			img.Cr[ci] = row[i+3]
		}
	}
	return img, nil
}

func nv12ToYCbCr(bm *platform.Bitmap) (image.Image, error) {
	if bm.Width%2 != 0 || bm.Height%2 != 0 {
		return nil, fmt.Errorf("nv12 size %dx%d is not even", bm.Width, bm.Height)
	}
	stride := strideOr(bm.Stride, bm.Width)
	lumaLen := stride * bm.Height
	if err := checkLen(bm.Data, lumaLen+stride*(bm.Height/2-1)+bm.Width); err != nil {
		return nil, err
	}
	img := image.NewYCbCr(image.Rect(0, 0, bm.Width, bm.Height), image.YCbCrSubsampleRatio420)
	for y := 0; y < bm.Height; y++ {
		copy(img.Y[y*img.YStride:y*img.YStride+bm.Width], bm.Data[y*stride:])
	}
	chroma := bm.Data[lumaLen:]
	for y := 0; y < bm.Height/2; y++ {
		row := chroma[y*stride:]
		for x := 0; x < bm.Width/2; x++ {
			img.Cb[y*img.CStride+x] = row[2*x]
			img.Cr[y*img.CStride+x] = row[2*x+1]
		}
	}
	return img, nil
}

func strideOr(stride, packed int) int {
	if stride <= 0 {
		return packed
	}
	return stride
}

func checkLen(data []byte, need int) error {
	if len(data) < need {
		return fmt.Errorf("bitmap data too short: have %d bytes, need %d", len(data), need)
	}
	return nil
}
