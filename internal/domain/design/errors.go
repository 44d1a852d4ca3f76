package design

import "errors"

var (
	ErrFormatUnrecognized = errors.New("format unrecognized")
	ErrParse              = errors.New("parse error")
	ErrArchiveCorrupt     = errors.New("archive corrupt")
	ErrModelBuild         = errors.New("model build error")
)
