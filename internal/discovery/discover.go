package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Discover recursively finds every .lua file under rootPath.
func Discover(rootPath string) ([]DiscoveredFile, error) {
	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("path not found: %s", absRoot)
		}
		return nil, fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return []DiscoveredFile{{
			Path: absRoot, RelativePath: filepath.Base(absRoot),
			Type: ClassifyPath(absRoot), ModTime: info.ModTime(),
		}}, nil
	}

	var files []DiscoveredFile
	err = filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(path), ".lua") {
			return nil
		}
		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}
		files = append(files, DiscoveredFile{
			Path: path, RelativePath: relPath,
			Type: ClassifyPath(path), ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return files, nil
}

// DiscoverTests finds only test entry points (*_test.lua / *_spec.lua)
// under rootPath, the files `covlua run` loads directly.
func DiscoverTests(rootPath string) ([]DiscoveredFile, error) {
	all, err := Discover(rootPath)
	if err != nil {
		return nil, err
	}
	var tests []DiscoveredFile
	for _, f := range all {
		if f.Type == FileTypeTest {
			tests = append(tests, f)
		}
	}
	return tests, nil
}
