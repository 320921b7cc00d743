package service

import (
	"errors"
	"os"
)

// Installed reports the plist path and whether it exists.
func Installed(label string) (string, bool) {
	path := PlistPath(label)
	_, err := os.Stat(path)
	return path, err == nil
}

// Uninstall removes the plist. It reports false when nothing was installed.
func Uninstall(label string) (bool, error) {
	err := os.Remove(PlistPath(label))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
