package storage

import (
	"path"
	"strings"
)

// ContentTypeFor guesses a content type from the key's extension
func ContentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".json":
		return "application/json"
	case ".zip":
		return "application/zip"
	case ".tgz", ".gz":
		return "application/gzip"
	case ".txt":
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}
