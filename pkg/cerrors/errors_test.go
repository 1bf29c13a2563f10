package cerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapNilIsNil(t *testing.T) {
	assert.NoError(t, WrapConfig(nil, "whatever"))
	assert.NoError(t, WrapIO(nil, "whatever"))
	assert.NoError(t, WrapValue(nil, "whatever"))
}

func TestKindClassification(t *testing.T) {
	err := IO("disc does not contain enough capacity")
	assert.True(t, Is(err, KindIO))
	assert.False(t, Is(err, KindConfig))
	assert.Equal(t, "disc does not contain enough capacity", err.Error())
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := WrapIO(cause, "mkisofs failed")
	var ce *CedarError
	assert.True(t, errors.As(err, &ce))
	assert.ErrorIs(t, err, cause)
}
