package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Directories
const (
	DevDir        = "/dev"
	RpmsgClassDir = "/sys/class/rpmsg"
)

// Fixed device nodes
const (
	DSPDebug    = "/dev/dsp_debug"
	KbufManager = "/dev/kbuf-mgr-0"
	RpmsgCtrl   = "/dev/rpmsg_ctrl0"
)

// RpmsgPrefix is the name prefix of rpmsg endpoint entries in sysfs and /dev.
const RpmsgPrefix = "rpmsg"

// VTTYDirName is the directory under the temp dir that holds virtual port links.
const VTTYDirName = "vtty"

// KbufMapDevice returns the map device the kbuf driver creates for a buffer.
func KbufMapDevice(devDir string, minor int32, name string) string {
	return filepath.Join(devDir, fmt.Sprintf("kbuf-map-%d-%s", minor, name))
}

// Device returns the node for a named entry in devDir.
func Device(devDir, entry string) string {
	return filepath.Join(devDir, entry)
}

// VTTYDir returns the directory holding virtual serial port symlinks.
func VTTYDir() string {
	return filepath.Join(os.TempDir(), VTTYDirName)
}

// VTTYLink returns the symlink path for a virtual port name.
func VTTYLink(name string) string {
	return filepath.Join(VTTYDir(), name)
}

// ValidateEntryName checks that a sysfs or port name is a single path element.
func ValidateEntryName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if strings.ContainsRune(name, filepath.Separator) || name == "." || name == ".." {
		return fmt.Errorf("name %q is not a single path element", name)
	}
	return nil
}
