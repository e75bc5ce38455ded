//go:build linux

package v4l2

import (
	"sort"

	"github.com/blackjack/webcam"

	"github.com/smazurov/qrgrabber/internal/platform"
)

func fourcc(s string) webcam.PixelFormat {
	return webcam.PixelFormat(uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24)
}

func fourccString(f webcam.PixelFormat) string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

// subtypes the frame relay can convert, in preference order. Uncompressed
// formats decode more reliably than MJPEG at the same size.
var subtypes = []struct {
	name  string
	pixel platform.PixelFormat
}{
	{"YUYV", platform.PixelFormatYUY2},
	{"NV12", platform.PixelFormatNV12},
	{"GREY", platform.PixelFormatGray8},
	{"MJPG", platform.PixelFormatMJPEG},
}

func pixelFormatFor(subtype string) platform.PixelFormat {
	for _, s := range subtypes {
		if s.name == subtype {
			return s.pixel
		}
	}
	return platform.PixelFormatUnknown
}

// stepwiseSizes are tried when a device reports a continuous size range.
var stepwiseSizes = [][2]uint32{
	{1920, 1080}, {1280, 960}, {1280, 720}, {1024, 768},
	{800, 600}, {640, 480}, {352, 288}, {320, 240},
}

// cameraFormats lists the formats of cam the relay can handle: preferred
// subtype first, and within a subtype widest first.
func cameraFormats(cam *webcam.Webcam) []platform.Format {
	supported := cam.GetSupportedFormats()

	var out []platform.Format
	for _, st := range subtypes {
		pf := fourcc(st.name)
		if _, ok := supported[pf]; !ok {
			continue
		}
		var sizes []platform.Format
		for _, fs := range cam.GetSupportedFrameSizes(pf) {
			sizes = append(sizes, expandFrameSize(st.name, fs)...)
		}
		sort.SliceStable(sizes, func(i, j int) bool {
			if sizes[i].Width != sizes[j].Width {
				return sizes[i].Width > sizes[j].Width
			}
			return sizes[i].Height > sizes[j].Height
		})
		out = append(out, dedupe(sizes)...)
	}
	return out
}

func expandFrameSize(subtype string, fs webcam.FrameSize) []platform.Format {
	if fs.StepWidth == 0 || fs.StepHeight == 0 || (fs.MinWidth == fs.MaxWidth && fs.MinHeight == fs.MaxHeight) {
		return []platform.Format{{Subtype: subtype, Width: fs.MaxWidth, Height: fs.MaxHeight}}
	}
	var out []platform.Format
	for _, s := range stepwiseSizes {
		w, h := s[0], s[1]
		if w < fs.MinWidth || w > fs.MaxWidth || h < fs.MinHeight || h > fs.MaxHeight {
			continue
		}
		if (w-fs.MinWidth)%fs.StepWidth != 0 || (h-fs.MinHeight)%fs.StepHeight != 0 {
			continue
		}
		out = append(out, platform.Format{Subtype: subtype, Width: w, Height: h})
	}
	return out
}

func dedupe(formats []platform.Format) []platform.Format {
	seen := make(map[platform.Format]bool, len(formats))
	out := formats[:0]
	for _, f := range formats {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
