package decode

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/qrgrabber/internal/platform"
)

func qrBitmap(t *testing.T, text string) *platform.Bitmap {
	t.Helper()
	img, err := RenderQR(text, 240, 240)
	if err != nil {
		t.Fatalf("RenderQR: %v", err)
	}
	return &platform.Bitmap{
		Format: platform.PixelFormatGray8,
		Width:  240,
		Height: 240,
		Stride: img.Stride,
		Data:   img.Pix,
	}
}

func TestZXing_RoundTrip(t *testing.T) {
	img, err := RenderQR("https://example.com/ticket/42", 300, 300)
	if err != nil {
		t.Fatalf("RenderQR: %v", err)
	}

	d, err := NewZXing(true).Decode(img)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Text != "https://example.com/ticket/42" {
		t.Errorf("Text = %q", d.Text)
	}
	if d.Symbology != "QR_CODE" {
		t.Errorf("Symbology = %q, want QR_CODE", d.Symbology)
	}
	if string(d.Raw) != d.Text {
		t.Errorf("Raw = %q, want payload bytes", d.Raw)
	}
}

func TestZXing_BlankFrameIsNotFound(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	_, err := NewZXing(false).Decode(img)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

type stubDecoder struct {
	calls atomic.Int32
	text  string
	delay time.Duration
}

func (s *stubDecoder) Decode(image.Image) (Decoded, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	if s.text == "" {
		return Decoded{}, ErrNotFound
	}
	return Decoded{Text: s.text, Raw: []byte(s.text), Symbology: "QR_CODE"}, nil
}

func grayBitmap() *platform.Bitmap {
	return &platform.Bitmap{Format: platform.PixelFormatGray8, Width: 4, Height: 4, Data: make([]byte, 16)}
}

func TestWorker_DeliversResults(t *testing.T) {
	results := make(chan Decoded, 1)
	w := NewWorker(&stubDecoder{text: "abc"}, func(d Decoded) { results <- d }, nil)
	defer w.Close()

	w.Submit(grayBitmap())

	select {
	case d := <-results:
		if d.Text != "abc" {
			t.Errorf("Text = %q", d.Text)
		}
	case <-time.After(time.Second):
		t.Fatal("no result")
	}
}

func TestWorker_SlowDecoderSeesLatestOnly(t *testing.T) {
	dec := &stubDecoder{delay: 50 * time.Millisecond}
	w := NewWorker(dec, nil, nil)

	for range 10 {
		w.Submit(grayBitmap())
	}
	time.Sleep(20 * time.Millisecond)
	w.Close()

	if calls := dec.calls.Load(); calls > 2 {
		t.Errorf("decoder called %d times, want at most 2", calls)
	}
	if w.Stats().Dropped == 0 {
		t.Error("expected overwritten frames to be counted")
	}
}

func TestScanner_DecodesOnlyWhileTriggered(t *testing.T) {
	reports := make(chan platform.ScanReport, 4)
	s := NewScanner(nil)
	s.SetDataReceivedHandler(func(r platform.ScanReport) { reports <- r })
	s.SetDecodeDataEnabled(true)

	ctx := context.Background()
	if err := s.StartSoftwareTrigger(ctx); err == nil {
		t.Error("trigger before Enable should fail")
	}
	if err := s.Enable(ctx); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	defer s.Release()

	bm := qrBitmap(t, "hello")

	s.Feed(bm)
	select {
	case r := <-reports:
		t.Fatalf("unexpected report before trigger: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	if err := s.StartSoftwareTrigger(ctx); err != nil {
		t.Fatalf("StartSoftwareTrigger: %v", err)
	}
	s.Feed(bm)

	select {
	case r := <-reports:
		if string(r.ScanDataLabel) != "hello" {
			t.Errorf("label = %q, want hello", r.ScanDataLabel)
		}
		if r.Symbology != "QR_CODE" {
			t.Errorf("symbology = %q", r.Symbology)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no report after trigger")
	}
}

func TestScanner_RepeatedCodeReportedOncePerTrigger(t *testing.T) {
	var count atomic.Int32
	s := NewScanner(nil, WithDecoderFactory(func() Decoder { return &stubDecoder{text: "same"} }))
	s.SetDataReceivedHandler(func(platform.ScanReport) { count.Add(1) })

	ctx := context.Background()
	_ = s.Enable(ctx)
	_ = s.StartSoftwareTrigger(ctx)
	for range 3 {
		s.Feed(grayBitmap())
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if got := count.Load(); got != 1 {
		t.Errorf("reports = %d, want 1", got)
	}

	_ = s.StopSoftwareTrigger(ctx)
	_ = s.StartSoftwareTrigger(ctx)
	s.Feed(grayBitmap())
	time.Sleep(30 * time.Millisecond)
	if got := count.Load(); got != 2 {
		t.Errorf("reports after re-trigger = %d, want 2", got)
	}
	_ = s.Release()
}

func TestScanner_NoLabelWhenDecodeDataDisabled(t *testing.T) {
	reports := make(chan platform.ScanReport, 1)
	s := NewScanner(nil, WithDecoderFactory(func() Decoder { return &stubDecoder{text: "raw"} }))
	s.SetDataReceivedHandler(func(r platform.ScanReport) { reports <- r })

	ctx := context.Background()
	_ = s.Enable(ctx)
	_ = s.StartSoftwareTrigger(ctx)
	s.Feed(grayBitmap())

	select {
	case r := <-reports:
		if len(r.ScanDataLabel) != 0 {
			t.Errorf("label = %q, want empty", r.ScanDataLabel)
		}
		if string(r.ScanData) != "raw" {
			t.Errorf("data = %q", r.ScanData)
		}
	case <-time.After(time.Second):
		t.Fatal("no report")
	}
	_ = s.Release()
}

func TestScanner_ReleaseIsIdempotent(t *testing.T) {
	var hooks atomic.Int32
	s := NewScanner(nil, WithReleaseHook(func() { hooks.Add(1) }))
	_ = s.Enable(context.Background())

	_ = s.Release()
	_ = s.Release()
	if hooks.Load() != 1 {
		t.Errorf("release hook ran %d times, want 1", hooks.Load())
	}
	if err := s.Enable(context.Background()); err == nil {
		t.Error("Enable after Release should fail")
	}
	if s.Active() {
		t.Error("released scanner reports active")
	}
}
