package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePath(t *testing.T) {
	assert.NoError(t, ValidatePath("data/file.bin", false))
	assert.NoError(t, ValidatePath("nested/dir/obj", false))
	assert.NoError(t, ValidatePath("/abs/path", true))

	assert.Error(t, ValidatePath("", false))
	assert.Error(t, ValidatePath("../escape", false))
	assert.Error(t, ValidatePath("a/../../escape", false))
	assert.Error(t, ValidatePath("/abs/path", false))
}

func TestValidatePathAllowsDotSegmentsThatResolveInside(t *testing.T) {
	assert.NoError(t, ValidatePath("a/../b", false))
	assert.NoError(t, ValidatePath("./file", false))
}

func TestSecureJoin(t *testing.T) {
	got, err := SecureJoin("/out", "bucket", "key.bin")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "bucket", "key.bin"), got)

	_, err = SecureJoin("/out", "..", "etc", "passwd")
	assert.Error(t, err)

	_, err = SecureJoin("", "x")
	assert.Error(t, err)
}

func TestSecureJoinNormalizesInsideBase(t *testing.T) {
	got, err := SecureJoin("/out", "a", "..", "b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "b"), got)
}
