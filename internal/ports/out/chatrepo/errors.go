package chatrepo

import "errors"

var (
	ErrNotFound      = errors.New("conversation not found")
	ErrAlreadyExists = errors.New("conversation already exists")
)
