// Package discovery walks a search path for Lua files and classifies
// them as test or source, the way internal/discovery/classifier.go
// classified *_test.sql against its co-located source. Lua modules
// never need the co-location step pgcov relied on -- the Module-Load
// Interceptor discovers and instruments source files lazily as test
// files `require` them -- so this package only needs to find the test
// entry points `covlua run` should execute.
package discovery

import "time"

// DiscoveredFile is one Lua file found under a search root.
type DiscoveredFile struct {
	Path         string
	RelativePath string
	Type         FileType
	ModTime      time.Time
}

// FileType indicates whether a file is a test entry point or a plain
// source module.
type FileType int

const (
	FileTypeTest   FileType = iota // matches *_test.lua or *_spec.lua
	FileTypeSource                 // any other .lua file
)

// String returns a human-readable name for ft.
func (ft FileType) String() string {
	switch ft {
	case FileTypeTest:
		return "test"
	case FileTypeSource:
		return "source"
	default:
		return "unknown"
	}
}
