package discovery

import (
	"path/filepath"
	"strings"
)

// ClassifyFile determines a file's FileType from its base name.
func ClassifyFile(filename string) FileType {
	lower := strings.ToLower(filename)
	if !strings.HasSuffix(lower, ".lua") {
		return FileTypeSource // non-Lua files never reach here in practice
	}
	if strings.HasSuffix(lower, "_test.lua") || strings.HasSuffix(lower, "_spec.lua") {
		return FileTypeTest
	}
	return FileTypeSource
}

// ClassifyPath determines file type from a full path.
func ClassifyPath(path string) FileType {
	return ClassifyFile(filepath.Base(path))
}

// IsTestFile reports whether filename names a test entry point.
func IsTestFile(filename string) bool {
	return ClassifyFile(filename) == FileTypeTest
}

// IsSourceFile reports whether filename names a plain source module.
func IsSourceFile(filename string) bool {
	return ClassifyFile(filename) == FileTypeSource
}
