//go:build linux

package v4l2

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	sysfsRoot = "/sys/class/video4linux"
	byIDDir   = "/dev/v4l/by-id"
)

// deviceInfo is one /dev/videoN node.
type deviceInfo struct {
	Path     string
	Name     string
	StableID string
	Index    int
}

// findDevices lists video4linux nodes. Metadata and output-only nodes are
// filtered out later when webcam.Open rejects them.
func findDevices(root string) ([]deviceInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", root, err)
	}

	var devices []deviceInfo
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "video") {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		index := readSysfsInt(filepath.Join(dir, "index"))
		name := readSysfsString(filepath.Join(dir, "name"))
		if name == "" {
			name = entry.Name()
		}
		stableID := findStableID(entry.Name(), index)
		if stableID == "" {
			stableID = entry.Name()
		}
		devices = append(devices, deviceInfo{
			Path:     "/dev/" + entry.Name(),
			Name:     name,
			StableID: stableID,
			Index:    index,
		})
	}

	sort.Slice(devices, func(i, j int) bool {
		return devNum(devices[i].Path) < devNum(devices[j].Path)
	})
	return devices, nil
}

// findStableID looks for the /dev/v4l/by-id symlink of a device node.
func findStableID(node string, index int) string {
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}
	suffix := fmt.Sprintf("-video-index%d", index)
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		target, err := os.Readlink(filepath.Join(byIDDir, entry.Name()))
		if err != nil {
			continue
		}
		if filepath.Base(target) == node && strings.HasSuffix(entry.Name(), suffix) {
			return entry.Name()
		}
	}
	return ""
}

func readSysfsInt(path string) int {
	v, _ := strconv.Atoi(readSysfsString(path))
	return v
}

func readSysfsString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func devNum(path string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(path), "video"))
	if err != nil {
		return 1 << 30
	}
	return n
}
