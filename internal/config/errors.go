package config

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned for files whose extension is not one of
// .toml, .yaml, .yml or .json.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ParseError represents an error while decoding a file.
type ParseError struct {
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
