package adc

import (
	"os"
	"path/filepath"
)

// KeyHostSys overrides the sysfs mount point, e.g. when running in a container.
const KeyHostSys = "HOST_SYS"

func sysPath(elem ...string) string {
	root := os.Getenv(KeyHostSys)
	if root == "" {
		root = "/sys"
	}

	return filepath.Join(append([]string{root}, elem...)...)
}
