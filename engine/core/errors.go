package core

import (
	"errors"
	"strings"
)

var (
	ErrNoSuitableMemory = errors.New("no suitable memory type")
	ErrNoSuitableDevice = errors.New("no suitable device")
	ErrInvalidState     = errors.New("invalid state")
	ErrUnknown          = errors.New("unknown")
)

// MissingParameterError is returned by builders invoked without a required
// dependency. Names lists every missing field in declaration order.
type MissingParameterError struct {
	Names []string
}

func (e *MissingParameterError) Error() string {
	return "missing parameter: " + strings.Join(e.Names, ", ")
}

// Has reports whether name is among the missing parameters.
func (e *MissingParameterError) Has(name string) bool {
	for _, n := range e.Names {
		if n == name {
			return true
		}
	}
	return false
}

// RequireParams collects the names whose flag is false and returns a
// MissingParameterError listing them, or nil when all are present.
func RequireParams(params ...Param) error {
	var missing []string
	for _, p := range params {
		if !p.Present {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingParameterError{Names: missing}
}

// Param pairs a builder field name with whether it was supplied.
type Param struct {
	Name    string
	Present bool
}
