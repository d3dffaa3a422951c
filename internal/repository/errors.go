package repository

import "errors"

// ErrNotFound indicates the requested principal or record does not exist.
var ErrNotFound = errors.New("repository: not found")
