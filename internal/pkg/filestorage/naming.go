package filestorage

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// StoredName derives the storage name of an upload: the upload millisecond
// followed by the original base name. Two uploads of the same name in the
// same millisecond collide and the later one wins.
func StoredName(now time.Time, originalName string) string {
	return fmt.Sprintf("%d_%s", now.UnixMilli(), CleanBase(originalName))
}

// Placeholder is the payload written for a stored name whose binary is gone
func Placeholder(displayName string) []byte {
	return []byte("File placeholder for " + displayName)
}

// CleanBase strips any client directory, slash or backslash separated, from
// an uploaded file name
func CleanBase(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "file"
	}
	return base
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, "/\\")
}
