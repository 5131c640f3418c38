package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cargoerrors "github.com/cargohold-io/cargohold/errors"
	"github.com/cargohold-io/cargohold/fs/billy"
)

func TestSignature_Stable(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	require.NoError(t, fsys.WriteFile("/data/report.txt", []byte("quarterly numbers"), 0o644))

	first, err := Signature(fsys, "/data/report.txt")
	require.NoError(t, err)
	second, err := Signature(fsys, "/data/report.txt")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Regexp(t, `^\d+:\d+:[0-9a-f]{64}$`, first)
}

func TestSignature_ChangesWithContent(t *testing.T) {
	fsys := billy.NewInMemoryFS()
	require.NoError(t, fsys.WriteFile("/data/report.txt", []byte("v1"), 0o644))

	before, err := Signature(fsys, "/data/report.txt")
	require.NoError(t, err)

	require.NoError(t, fsys.WriteFile("/data/report.txt", []byte("v2 with more"), 0o644))

	after, err := Signature(fsys, "/data/report.txt")
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestSignature_MissingFile(t *testing.T) {
	fsys := billy.NewInMemoryFS()

	_, err := Signature(fsys, "/data/nope.txt")

	require.Error(t, err)
	assert.True(t, cargoerrors.IsIO(err))
}
