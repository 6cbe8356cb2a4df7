package report

import "github.com/cybertec-postgresql/covlua/pkg/luatypes"

// storeFileID converts a FileSummary.Path back into the luatypes.FileId
// it was derived from. internal/loader keys every File Record by its
// absolute path converted directly to a FileId, so the two are always
// equal.
func storeFileID(path string) luatypes.FileId {
	return luatypes.FileId(path)
}
