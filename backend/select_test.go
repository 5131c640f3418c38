package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cargoerrors "github.com/cargohold-io/cargohold/errors"
)

// TestSelect covers the backend selection rules in order.
func TestSelect(t *testing.T) {
	tests := []struct {
		name    string
		size    int64
		policy  Policy
		want    Kind
		wantErr bool
	}{
		{
			name:   "small object goes simple",
			size:   1024,
			policy: DefaultPolicy(),
			want:   KindSimple,
		},
		{
			name:   "exactly at simple limit goes simple",
			size:   DefaultSimpleLimit,
			policy: DefaultPolicy(),
			want:   KindSimple,
		},
		{
			name:   "one byte over simple limit goes chunked",
			size:   DefaultSimpleLimit + 1,
			policy: DefaultPolicy(),
			want:   KindChunked,
		},
		{
			name:   "exactly at chunked limit goes chunked",
			size:   DefaultChunkedLimit,
			policy: DefaultPolicy(),
			want:   KindChunked,
		},
		{
			name:    "over chunked limit is rejected",
			size:    DefaultChunkedLimit + 1,
			policy:  DefaultPolicy(),
			wantErr: true,
		},
		{
			name: "force simple wins when it fits",
			size: 1024,
			policy: Policy{
				SimpleEnabled:  true,
				ChunkedEnabled: true,
				ForceSimple:    true,
				ForceChunked:   true,
				SimpleLimit:    DefaultSimpleLimit,
				ChunkedLimit:   DefaultChunkedLimit,
			},
			want: KindSimple,
		},
		{
			name: "force simple falls through when too big",
			size: DefaultSimpleLimit + 1,
			policy: Policy{
				SimpleEnabled:  true,
				ChunkedEnabled: true,
				ForceSimple:    true,
				SimpleLimit:    DefaultSimpleLimit,
				ChunkedLimit:   DefaultChunkedLimit,
			},
			want: KindChunked,
		},
		{
			name: "force chunked routes small objects to chunked",
			size: 1024,
			policy: Policy{
				SimpleEnabled:  true,
				ChunkedEnabled: true,
				ForceChunked:   true,
				SimpleLimit:    DefaultSimpleLimit,
				ChunkedLimit:   DefaultChunkedLimit,
			},
			want: KindChunked,
		},
		{
			name: "simple disabled routes small objects to chunked",
			size: 1024,
			policy: Policy{
				ChunkedEnabled: true,
				SimpleLimit:    DefaultSimpleLimit,
				ChunkedLimit:   DefaultChunkedLimit,
			},
			want: KindChunked,
		},
		{
			name: "chunked disabled rejects large objects",
			size: DefaultSimpleLimit + 1,
			policy: Policy{
				SimpleEnabled: true,
				SimpleLimit:   DefaultSimpleLimit,
				ChunkedLimit:  DefaultChunkedLimit,
			},
			wantErr: true,
		},
		{
			name: "everything disabled rejects everything",
			size: 1,
			policy: Policy{
				SimpleLimit:  DefaultSimpleLimit,
				ChunkedLimit: DefaultChunkedLimit,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(tt.size, tt.policy)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, cargoerrors.IsSizeLimit(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestSelect_MixedPayloadSizes routes a realistic mix of object sizes.
func TestSelect_MixedPayloadSizes(t *testing.T) {
	pol := DefaultPolicy()

	// 40 MB: fits the simple path.
	kind, err := Select(40_000_000, pol)
	require.NoError(t, err)
	assert.Equal(t, KindSimple, kind)

	// 1.5 GB: too big for simple, fits chunked.
	kind, err = Select(1_500_000_000, pol)
	require.NoError(t, err)
	assert.Equal(t, KindChunked, kind)

	// 2.5 GB: over every ceiling, rejected before any network call.
	_, err = Select(2_500_000_000, pol)
	require.Error(t, err)
	assert.True(t, cargoerrors.IsSizeLimit(err))
}

func TestDefaultPolicy(t *testing.T) {
	pol := DefaultPolicy()

	assert.True(t, pol.SimpleEnabled)
	assert.True(t, pol.ChunkedEnabled)
	assert.False(t, pol.ForceSimple)
	assert.False(t, pol.ForceChunked)
	assert.Equal(t, int64(DefaultSimpleLimit), pol.SimpleLimit)
	assert.Equal(t, int64(DefaultChunkedLimit), pol.ChunkedLimit)
}
