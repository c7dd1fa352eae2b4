package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageErrPassesThrough(t *testing.T) {
	assert.NoError(t, storageErr("op", nil))
	assert.Same(t, ErrNotFound, storageErr("op", ErrNotFound))

	inner := &StorageError{Op: "inner", Err: errors.New("x")}
	assert.Same(t, inner, storageErr("outer", inner))
}

func TestStorageErrWraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := storageErr("list turns", cause)

	var se *StorageError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, "list turns", se.Op)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "storage: list turns: connection refused", err.Error())
}

func TestCompletionErrorUnwraps(t *testing.T) {
	cause := errors.New("timeout")
	err := error(&CompletionError{Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "completion: timeout", err.Error())
}
