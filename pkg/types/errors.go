package types

import "errors"

var (
	// ErrConfiguration marks malformed label files, missing input directories
	// and invalid window dimensions. It is raised before any store is opened.
	ErrConfiguration = errors.New("configuration error")

	// ErrOutOfRange is returned by index accessors for indices outside [0, Len()).
	ErrOutOfRange = errors.New("index out of range")

	// ErrCorruptShard means the three on-disk parts of a shard disagree.
	ErrCorruptShard = errors.New("corrupt shard")

	// ErrValidation rejects writes whose arrays are inconsistent.
	ErrValidation = errors.New("validation failed")
)
