package hostcall

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewErrorFormatsMessage(t *testing.T) {
	err := NewError(KindValidation, "bad field %q", "name")
	require.Equal(t, "validation: bad field \"name\"", err.Error())
	require.Equal(t, KindValidation, err.Kind)
}

func TestAsDetail(t *testing.T) {
	err := NewError(KindIntegrity, "crc mismatch")
	detail := err.AsDetail()
	require.Equal(t, "integrity", detail.Code)
	require.Equal(t, "crc mismatch", detail.Message)
}
