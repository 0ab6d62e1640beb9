package apikey

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrKeyNotFound             = errors.New("api key not found")
	ErrKeyInactive             = errors.New("api key is inactive")
	ErrKeyExpired              = errors.New("api key has expired")
	ErrIPNotAllowed            = errors.New("client ip not allowed for api key")
	ErrUnknownPermission       = errors.New("unknown permission")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
)

// PermissionError lists the permissions a valid key lacks for a request.
type PermissionError struct {
	Missing []Permission
}

func (e *PermissionError) Error() string {
	names := make([]string, len(e.Missing))
	for i, p := range e.Missing {
		names[i] = string(p)
	}
	return fmt.Sprintf("%s: missing %s", ErrInsufficientPermissions, strings.Join(names, ", "))
}

func (e *PermissionError) Unwrap() error {
	return ErrInsufficientPermissions
}
