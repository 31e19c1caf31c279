package binding_set

import "errors"

var (
	// ErrUnknownUniformField is returned when a uniform struct or field name does not exist in the shader.
	ErrUnknownUniformField = errors.New("binding set: unknown uniform field")

	// ErrFieldOverflow is returned when more values are written than a uniform field holds.
	ErrFieldOverflow = errors.New("binding set: values overflow uniform field")

	// ErrReadbackOverflow is returned when a readback length prefix is negative, not a whole number, or larger than the buffer.
	ErrReadbackOverflow = errors.New("binding set: readback length exceeds capacity")

	// ErrInvalidCapacity is returned for a buffer capacity that is zero, unaligned, or too small for a length prefix.
	ErrInvalidCapacity = errors.New("binding set: invalid buffer capacity")

	// ErrNotReady is returned when a bind group is requested before every slot has a resource.
	ErrNotReady = errors.New("binding set: bind group not ready")

	// ErrReleased is returned by any operation on a binding set after Release.
	ErrReleased = errors.New("binding set: released")

	// ErrNoTextureSlot is returned by SetTexture when the shader declares no texture binding.
	ErrNoTextureSlot = errors.New("binding set: shader declares no texture binding")

	// ErrUnknownBuffer is returned when a storage or readback buffer name does not exist in the shader.
	ErrUnknownBuffer = errors.New("binding set: unknown buffer")
)
