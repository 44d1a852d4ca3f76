package design

import "context"

// Parser turns a set of uploaded files of one format into raw layer data.
type Parser interface {
	Parse(ctx context.Context, files []File) (*Raw, error)
}
