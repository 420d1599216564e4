package handler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStringToleratesUnsetLocals(t *testing.T) {
	require.Equal(t, "", localString(nil))
	require.Equal(t, "", localString(42))
	require.Equal(t, "corr-1", localString("corr-1"))
}
