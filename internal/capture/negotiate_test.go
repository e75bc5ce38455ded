package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/smazurov/qrgrabber/internal/platform"
	"github.com/smazurov/qrgrabber/internal/platform/fake"
)

func colorSource(id string, formats ...platform.Format) platform.SourceInfo {
	return platform.SourceInfo{
		ID:         id,
		StreamType: platform.StreamTypeVideoRecord,
		Kind:       platform.SourceKindColor,
		Formats:    formats,
	}
}

func TestFindColorSource(t *testing.T) {
	depth := platform.SourceInfo{ID: "depth", StreamType: platform.StreamTypeVideoRecord, Kind: platform.SourceKindDepth}
	preview := platform.SourceInfo{ID: "preview", StreamType: platform.StreamTypeVideoPreview, Kind: platform.SourceKindColor}

	tests := []struct {
		name       string
		groups     []platform.SourceGroup
		wantGroup  string
		wantSource string
		wantErr    error
	}{
		{
			name:       "last color entry in group wins",
			groups:     []platform.SourceGroup{{ID: "cam", Sources: []platform.SourceInfo{colorSource("A"), colorSource("B")}}},
			wantGroup:  "cam",
			wantSource: "B",
		},
		{
			name: "first matching group wins",
			groups: []platform.SourceGroup{
				{ID: "ir-only", Sources: []platform.SourceInfo{depth}},
				{ID: "first", Sources: []platform.SourceInfo{colorSource("X")}},
				{ID: "second", Sources: []platform.SourceInfo{colorSource("Y")}},
			},
			wantGroup:  "first",
			wantSource: "X",
		},
		{
			name:       "non matching entries are skipped",
			groups:     []platform.SourceGroup{{ID: "cam", Sources: []platform.SourceInfo{colorSource("A"), depth, preview}}},
			wantGroup:  "cam",
			wantSource: "A",
		},
		{
			name:    "no color source",
			groups:  []platform.SourceGroup{{ID: "cam", Sources: []platform.SourceInfo{depth, preview}}},
			wantErr: ErrNoColorSource,
		},
		{
			name:    "no groups",
			groups:  nil,
			wantErr: ErrNoColorSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := fake.New(fake.WithGroups(tt.groups))
			group, desc, err := FindColorSource(context.Background(), backend)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if !IsNegotiationError(err) {
					t.Error("expected a negotiation error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if group.ID != tt.wantGroup {
				t.Errorf("group = %s, want %s", group.ID, tt.wantGroup)
			}
			if desc.SourceID != tt.wantSource || desc.GroupID != tt.wantGroup {
				t.Errorf("descriptor = %+v, want source %s", desc, tt.wantSource)
			}
		})
	}
}

func TestFindColorSource_EnumerationError(t *testing.T) {
	boom := errors.New("boom")
	backend := fake.New(fake.WithErrors(fake.Errors{Enumerate: boom}))

	_, _, err := FindColorSource(context.Background(), backend)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
	if ErrorCode(err) != CodeEnumerationFailed {
		t.Errorf("code = %s, want %s", ErrorCode(err), CodeEnumerationFailed)
	}
}

func TestSupportedFrameFormat(t *testing.T) {
	tests := []struct {
		name    string
		formats []platform.Format
		want    uint32
		wantErr bool
	}{
		{"first qualifying not narrowest", []platform.Format{{Width: 1920}, {Width: 640}, {Width: 1280}}, 640, false},
		{"boundary is inclusive", []platform.Format{{Width: 1024}, {Width: 800}, {Width: 320}}, 800, false},
		{"none qualify", []platform.Format{{Width: 1920}, {Width: 1280}}, 0, true},
		{"empty list", nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SupportedFrameFormat(tt.formats, MaxWidth(800))
			if tt.wantErr {
				if !errors.Is(err, ErrNoSupportedFormat) {
					t.Errorf("err = %v, want ErrNoSupportedFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Width != tt.want {
				t.Errorf("width = %d, want %d", got.Width, tt.want)
			}
		})
	}
}

func TestErrorCodes(t *testing.T) {
	err := newError(CodeInitFailed, "initialize capture", errors.New("busy"))
	if !IsInitializationError(err) {
		t.Error("INIT_FAILED should be an initialization error")
	}
	if IsNegotiationError(err) {
		t.Error("INIT_FAILED should not be a negotiation error")
	}
	if errors.Is(err, ErrNotPrepared) {
		t.Error("codes must not match across kinds")
	}
	if got := err.Error(); got != "INIT_FAILED: initialize capture: busy" {
		t.Errorf("Error() = %q", got)
	}
}
