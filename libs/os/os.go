package os

import (
	"fmt"
	"os"
)

// EnsureDir creates dir with the given mode unless it already exists. It fails
// if dir exists but is not a directory.
func EnsureDir(dir string, mode os.FileMode) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("path %v exists and is not a directory", dir)
		}
		return nil
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, mode); err != nil {
			return fmt.Errorf("could not create directory %v: %w", dir, err)
		}
		return nil
	default:
		return fmt.Errorf("could not stat directory %v: %w", dir, err)
	}
}

func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !os.IsNotExist(err)
}

func WriteFile(filePath string, contents []byte, mode os.FileMode) error {
	return os.WriteFile(filePath, contents, mode)
}
