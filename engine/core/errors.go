package core

import "errors"

var (
	// mesh cache
	ErrEmptyMesh        = errors.New("mesh has no vertices or no indices")
	ErrMeshKeyCollision = errors.New("mesh key collides with a different mesh name")
	ErrUnknownMesh      = errors.New("unknown mesh handle")

	// world
	ErrUnknownEntity = errors.New("unknown entity")
	ErrTooManyLights = errors.New("too many lights in world")

	// gpu resources
	ErrAllocation         = errors.New("gpu buffer allocation failed")
	ErrMap                = errors.New("gpu buffer map failed")
	ErrBufferNotAllocated = errors.New("gpu buffer is not allocated")

	// lifecycle
	ErrNotInitialized     = errors.New("not initialized")
	ErrAlreadyInitialized = errors.New("already initialized")
)
