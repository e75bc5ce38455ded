package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/smazurov/qrgrabber/internal/platform"
)

func TestToRGBA_Gray8(t *testing.T) {
	bm := &platform.Bitmap{
		Format: platform.PixelFormatGray8,
		Width:  2,
		Height: 2,
		Data:   []byte{0, 64, 128, 255},
	}
	pix, w, h, err := ToRGBA(bm)
	if err != nil {
		t.Fatalf("ToRGBA: %v", err)
	}
	if w != 2 || h != 2 {
		t.Fatalf("size = %dx%d, want 2x2", w, h)
	}
	if len(pix) != 16 {
		t.Fatalf("len(pix) = %d, want 16", len(pix))
	}
	want := []byte{0, 0, 0, 255, 64, 64, 64, 255, 128, 128, 128, 255, 255, 255, 255, 255}
	if !bytes.Equal(pix, want) {
		t.Errorf("pix = %v, want %v", pix, want)
	}
}

func TestToRGBA_StrideIsRemoved(t *testing.T) {
	// two rows of one gray pixel each, padded to stride 4
	bm := &platform.Bitmap{
		Format: platform.PixelFormatGray8,
		Width:  1,
		Height: 2,
		Stride: 4,
		Data:   []byte{10, 99, 99, 99, 20},
	}
	pix, _, _, err := ToRGBA(bm)
	if err != nil {
		t.Fatalf("ToRGBA: %v", err)
	}
	if len(pix) != 8 || pix[0] != 10 || pix[4] != 20 {
		t.Errorf("pix = %v", pix)
	}
}

func TestToRGBA_BGRASwapsChannels(t *testing.T) {
	bm := &platform.Bitmap{
		Format: platform.PixelFormatBGRA8,
		Alpha:  platform.AlphaModeStraight,
		Width:  1,
		Height: 1,
		Data:   []byte{1, 2, 3, 255},
	}
	pix, _, _, err := ToRGBA(bm)
	if err != nil {
		t.Fatalf("ToRGBA: %v", err)
	}
	if !bytes.Equal(pix, []byte{3, 2, 1, 255}) {
		t.Errorf("pix = %v, want [3 2 1 255]", pix)
	}
	if bm.Data[0] != 1 {
		t.Error("source bitmap was modified")
	}
}

func TestToRGBA_PremultipliedPassesThrough(t *testing.T) {
	bm := &platform.Bitmap{
		Format: platform.PixelFormatRGBA8,
		Alpha:  platform.AlphaModePremultiplied,
		Width:  1,
		Height: 1,
		Data:   []byte{100, 50, 0, 128},
	}
	pix, _, _, err := ToRGBA(bm)
	if err != nil {
		t.Fatalf("ToRGBA: %v", err)
	}
	if !bytes.Equal(pix, bm.Data) {
		t.Errorf("pix = %v, want %v", pix, bm.Data)
	}
	pix[0] = 0
	if bm.Data[0] != 100 {
		t.Error("output aliases the source bitmap")
	}
}

func TestToRGBA_StraightIsPremultiplied(t *testing.T) {
	bm := &platform.Bitmap{
		Format: platform.PixelFormatRGBA8,
		Alpha:  platform.AlphaModeStraight,
		Width:  1,
		Height: 1,
		Data:   []byte{200, 100, 0, 128},
	}
	pix, _, _, err := ToRGBA(bm)
	if err != nil {
		t.Fatalf("ToRGBA: %v", err)
	}
	// 200 * 128 / 255 ~= 100
	if pix[3] != 128 || pix[0] < 99 || pix[0] > 101 {
		t.Errorf("pix = %v, want red ~100, alpha 128", pix)
	}
}

func TestToRGBA_IgnoreAlphaIsOpaque(t *testing.T) {
	bm := &platform.Bitmap{
		Format: platform.PixelFormatRGBA8,
		Alpha:  platform.AlphaModeIgnore,
		Width:  1,
		Height: 1,
		Data:   []byte{9, 8, 7, 0},
	}
	pix, _, _, err := ToRGBA(bm)
	if err != nil {
		t.Fatalf("ToRGBA: %v", err)
	}
	if !bytes.Equal(pix, []byte{9, 8, 7, 255}) {
		t.Errorf("pix = %v, want [9 8 7 255]", pix)
	}
	if bm.Data[3] != 0 {
		t.Error("source bitmap was modified")
	}
}

func TestToRGBA_YUY2(t *testing.T) {
	// Y=235 with neutral chroma is white
	bm := &platform.Bitmap{
		Format: platform.PixelFormatYUY2,
		Width:  2,
		Height: 1,
		Data:   []byte{235, 128, 235, 128},
	}
	pix, w, h, err := ToRGBA(bm)
	if err != nil {
		t.Fatalf("ToRGBA: %v", err)
	}
	if w != 2 || h != 1 {
		t.Fatalf("size = %dx%d", w, h)
	}
	for i := 0; i < 2; i++ {
		if grayAt(pix, w, i, 0) < 230 {
			t.Errorf("pixel %d gray = %d, want white", i, grayAt(pix, w, i, 0))
		}
	}
}

func TestToRGBA_NV12(t *testing.T) {
	bm := &platform.Bitmap{
		Format: platform.PixelFormatNV12,
		Width:  2,
		Height: 2,
		Data:   []byte{16, 16, 16, 16, 128, 128},
	}
	pix, _, _, err := ToRGBA(bm)
	if err != nil {
		t.Fatalf("ToRGBA: %v", err)
	}
	if grayAt(pix, 2, 1, 1) > 5 {
		t.Errorf("gray = %d, want black", grayAt(pix, 2, 1, 1))
	}
}

func TestToRGBA_MJPEGUsesDecodedSize(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 16, 8))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatal(err)
	}

	pix, w, h, err := ToRGBA(&platform.Bitmap{Format: platform.PixelFormatMJPEG, Data: buf.Bytes()})
	if err != nil {
		t.Fatalf("ToRGBA: %v", err)
	}
	if w != 16 || h != 8 || len(pix) != 16*8*4 {
		t.Errorf("got %dx%d len %d, want 16x8 len 512", w, h, len(pix))
	}
}

func TestToRGBA_Errors(t *testing.T) {
	tests := []struct {
		name string
		bm   *platform.Bitmap
	}{
		{"nil", nil},
		{"zero size", &platform.Bitmap{Format: platform.PixelFormatGray8}},
		{"short data", &platform.Bitmap{Format: platform.PixelFormatGray8, Width: 4, Height: 4, Data: []byte{1}}},
		{"odd yuy2", &platform.Bitmap{Format: platform.PixelFormatYUY2, Width: 3, Height: 1, Data: make([]byte, 6)}},
		{"unknown", &platform.Bitmap{Format: platform.PixelFormatUnknown, Width: 1, Height: 1, Data: []byte{0}}},
		{"bad jpeg", &platform.Bitmap{Format: platform.PixelFormatMJPEG, Data: []byte("nope")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, _, err := ToRGBA(tt.bm); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMirror(t *testing.T) {
	pix := []byte{
		1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3,
		4, 4, 4, 4, 5, 5, 5, 5, 6, 6, 6, 6,
	}
	Mirror(pix, 3, 2)
	want := []byte{
		3, 3, 3, 3, 2, 2, 2, 2, 1, 1, 1, 1,
		6, 6, 6, 6, 5, 5, 5, 5, 4, 4, 4, 4,
	}
	if !bytes.Equal(pix, want) {
		t.Errorf("pix = %v, want %v", pix, want)
	}
}

func TestRGBAImage(t *testing.T) {
	img := RGBAImage([]byte{10, 20, 30, 255}, 1, 1)
	got := img.At(0, 0).(color.RGBA)
	if got.R != 10 || got.G != 20 || got.B != 30 {
		t.Errorf("At(0,0) = %v", got)
	}
}

// grayAt returns the luminance of pixel (x, y) in a tightly packed RGBA buffer.
func grayAt(pix []byte, width, x, y int) uint8 {
	i := (y*width + x) * 4
	return color.GrayModel.Convert(color.RGBA{R: pix[i], G: pix[i+1], B: pix[i+2], A: pix[i+3]}).(color.Gray).Y
}
