// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"github.com/smazurov/qrgrabber/internal/scan"
	"github.com/smazurov/qrgrabber/internal/updater"
	"github.com/smazurov/qrgrabber/internal/version"
)

// HealthData reports service liveness and scanner state.
type HealthData struct {
	Status   string `json:"status" example:"ok" doc:"Service status"`
	Message  string `json:"message" example:"API is healthy" doc:"Status message"`
	Prepared bool   `json:"prepared" doc:"Whether a scanner is claimed and a capture negotiated"`
	Scanning bool   `json:"scanning" doc:"Whether a scan is waiting for a decode"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionResponse struct {
	Body version.Info
}

// FormatInfo is one frame format of a source.
type FormatInfo struct {
	Subtype string `json:"subtype" example:"YUYV" doc:"Four character pixel format code"`
	Width   uint32 `json:"width" example:"800"`
	Height  uint32 `json:"height" example:"600"`
}

// SourceInfo describes one source of a device.
type SourceInfo struct {
	ID         string       `json:"id" example:"/dev/video0"`
	Kind       string       `json:"kind" enum:"custom,color,infrared,depth" example:"color"`
	StreamType string       `json:"stream_type" example:"video_preview"`
	Formats    []FormatInfo `json:"formats"`
}

// DeviceInfo is one source group, typically a camera.
type DeviceInfo struct {
	ID          string       `json:"id" example:"usb-046d_HD_Webcam_C525-video-index0" doc:"Stable device identifier"`
	DisplayName string       `json:"display_name" example:"HD Webcam C525"`
	Sources     []SourceInfo `json:"sources"`
}

type DeviceData struct {
	Backend string       `json:"backend" example:"v4l2" doc:"Active capture backend"`
	Devices []DeviceInfo `json:"devices"`
	Count   int          `json:"count" example:"1"`
}

type DeviceResponse struct {
	Body DeviceData
}

// PrepareData is the negotiated capture geometry.
type PrepareData struct {
	Width  int `json:"width" example:"800" doc:"Negotiated frame width"`
	Height int `json:"height" example:"600" doc:"Negotiated frame height"`
}

type PrepareResponse struct {
	Body PrepareData
}

// ScanRequest starts a blocking scan.
type ScanRequest struct {
	Prepare bool `query:"prepare" default:"true" doc:"Prepare the scanner before scanning. The session is released after every scan."`
}

type ScanResponse struct {
	Body scan.Result
}

type StopData struct {
	Stopped bool   `json:"stopped" doc:"Whether a pending scan was released"`
	ScanID  string `json:"scan_id,omitempty" doc:"Identifier of the released scan"`
}

type StopResponse struct {
	Body StopData
}

// PreviewResponse is a JPEG snapshot of the latest frame.
type PreviewResponse struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

// Update models

type UpdateCheckResponse struct {
	Body updater.UpdateInfo
}

type UpdateStatusResponse struct {
	Body updater.Status
}

type MessageResponse struct {
	Body struct {
		Message string `json:"message" example:"Update applied, restarting..." doc:"Status message"`
	}
}

// NewMessage builds a MessageResponse.
func NewMessage(msg string) *MessageResponse {
	resp := &MessageResponse{}
	resp.Body.Message = msg
	return resp
}
