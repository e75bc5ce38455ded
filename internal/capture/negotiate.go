package capture

import (
	"context"

	"github.com/smazurov/qrgrabber/internal/platform"
)

// FindColorSource returns the first source group that contains a color
// video-record source. When a group holds several, the last one in
// enumeration order is returned.
func FindColorSource(ctx context.Context, media platform.MediaService) (platform.SourceGroup, SourceDescriptor, error) {
	groups, err := media.FindSourceGroups(ctx)
	if err != nil {
		return platform.SourceGroup{}, SourceDescriptor{}, newError(CodeEnumerationFailed, "enumerate source groups", err)
	}

	for _, group := range groups {
		var desc SourceDescriptor
		found := false
		for _, src := range group.Sources {
			if src.StreamType == platform.StreamTypeVideoRecord && src.Kind == platform.SourceKindColor {
				desc = SourceDescriptor{GroupID: group.ID, SourceID: src.ID, Formats: src.Formats}
				found = true
			}
		}
		if found {
			return group, desc, nil
		}
	}
	return platform.SourceGroup{}, SourceDescriptor{}, newError(CodeNoColorSource, "no color video source found", nil)
}

// SupportedFrameFormat returns the first format in list order that
// satisfies constraint.
func SupportedFrameFormat(formats []platform.Format, constraint FormatConstraint) (platform.Format, error) {
	for _, f := range formats {
		if constraint(f) {
			return f, nil
		}
	}
	return platform.Format{}, newError(CodeNoSupportedFormat, "no format satisfies the resolution constraint", nil)
}
