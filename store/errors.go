package store

import "errors"

var (
	// ErrClosed is returned when an operation is attempted on a closed
	// client or manager.
	ErrClosed = errors.New("sparse: closed")

	// ErrInvalidValue is returned when a property value is not a scalar, an
	// array of scalars, or the removal sentinel.
	ErrInvalidValue = errors.New("sparse: unsupported property value type")

	// ErrNoStreamHelper is returned by streamed-body operations when the
	// adapter was constructed without a content helper.
	ErrNoStreamHelper = errors.New("sparse: no streamed content helper configured")
)
