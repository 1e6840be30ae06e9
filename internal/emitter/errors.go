package emitter

import "errors"

var (
	// ErrValidation is returned when a collection cannot be constructed from
	// the supplied fields: length mismatches, bad xyz dimensions, non-integral
	// frame indices, conflicting metadata or invalid arguments.
	ErrValidation = errors.New("emitter validation failed")

	// ErrUnit is returned by unit accessors when xy_unit or px_size do not
	// allow the requested conversion.
	ErrUnit = errors.New("emitter unit error")

	// ErrNotSupported is returned for operations that are deliberately
	// rejected, such as strided frame access or unknown field names.
	ErrNotSupported = errors.New("not supported")

	// ErrFieldAbsent is returned when an accessor needs an optional field
	// that the collection does not carry.
	ErrFieldAbsent = errors.New("field not present")
)
