//go:build windows

package repository

import "errors"

var ErrLocked = errors.New("registry is used by another process")

func Lock(string) (func(), error) {
	return func() {}, nil
}
