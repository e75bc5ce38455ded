//go:build linux

package v4l2

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/blackjack/webcam"

	"github.com/smazurov/qrgrabber/internal/platform"
)

func writeNode(t *testing.T, root, node, name, index string) {
	t.Helper()
	dir := filepath.Join(root, node)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if name != "" {
		if err := os.WriteFile(filepath.Join(dir, "name"), []byte(name+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "index"), []byte(index+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFindDevices(t *testing.T) {
	root := t.TempDir()
	writeNode(t, root, "video10", "Capture Card", "0")
	writeNode(t, root, "video2", "USB Camera", "0")
	writeNode(t, root, "video3", "", "1")
	writeNode(t, root, "v4l-subdev0", "sensor", "0")

	devices, err := findDevices(root)
	if err != nil {
		t.Fatalf("findDevices: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("got %d devices, want 3: %+v", len(devices), devices)
	}
	if devices[0].Path != "/dev/video2" || devices[1].Path != "/dev/video3" || devices[2].Path != "/dev/video10" {
		t.Errorf("order = %s, %s, %s", devices[0].Path, devices[1].Path, devices[2].Path)
	}
	if devices[0].Name != "USB Camera" {
		t.Errorf("name = %q", devices[0].Name)
	}
	if devices[1].Name != "video3" || devices[1].Index != 1 {
		t.Errorf("fallback name/index = %q/%d", devices[1].Name, devices[1].Index)
	}
}

func TestFindDevices_MissingRoot(t *testing.T) {
	devices, err := findDevices(filepath.Join(t.TempDir(), "missing"))
	if err != nil || len(devices) != 0 {
		t.Errorf("findDevices = %v, %v; want empty, nil", devices, err)
	}
}

func TestFourCC(t *testing.T) {
	if got := fourcc("YUYV"); got != webcam.PixelFormat(0x56595559) {
		t.Errorf("fourcc(YUYV) = %#x", uint32(got))
	}
	if got := fourccString(fourcc("MJPG")); got != "MJPG" {
		t.Errorf("round trip = %q", got)
	}
	if pixelFormatFor("NV12") != platform.PixelFormatNV12 || pixelFormatFor("H264") != platform.PixelFormatUnknown {
		t.Error("pixelFormatFor mapping")
	}
}

func TestExpandFrameSize(t *testing.T) {
	discrete := expandFrameSize("YUYV", webcam.FrameSize{MinWidth: 640, MaxWidth: 640, MinHeight: 480, MaxHeight: 480})
	if len(discrete) != 1 || discrete[0] != (platform.Format{Subtype: "YUYV", Width: 640, Height: 480}) {
		t.Errorf("discrete = %v", discrete)
	}

	stepwise := expandFrameSize("YUYV", webcam.FrameSize{
		MinWidth: 320, MaxWidth: 1280, StepWidth: 16,
		MinHeight: 240, MaxHeight: 960, StepHeight: 8,
	})
	want := map[platform.Format]bool{
		{Subtype: "YUYV", Width: 1280, Height: 960}: true,
		{Subtype: "YUYV", Width: 1280, Height: 720}: true,
		{Subtype: "YUYV", Width: 1024, Height: 768}: true,
		{Subtype: "YUYV", Width: 800, Height: 600}:  true,
		{Subtype: "YUYV", Width: 640, Height: 480}:  true,
		{Subtype: "YUYV", Width: 352, Height: 288}:  true,
		{Subtype: "YUYV", Width: 320, Height: 240}:  true,
	}
	for _, f := range stepwise {
		if !want[f] {
			t.Errorf("unexpected size %v", f)
		}
		delete(want, f)
	}
	for f := range want {
		t.Errorf("missing size %v", f)
	}
}
