package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	grpccodes "google.golang.org/grpc/codes"
)

// generateErrorFixtures creates test fixtures with sample metadata for each error type
func generateErrorFixtures() []Error {
	return []Error{
		INTERNAL_ERROR.New("Internal error occurred").
			WithMetadata(map[string]any{
				"component": "walker",
				"level":     2,
			}),

		ROOT_NOT_FOUND.New("root not found").
			WithMetadata(RootMetadata{
				Handle:     "0x5f8f0e3a2728a161e529ecacdfdface88b2fa669279aa699afd5d6b462c68466",
				Checkpoint: 240000000,
			}),

		ROOT_FETCH_FAILED.Wrap(fmt.Errorf("connection reset")).
			WithMetadata(RootMetadata{
				Handle:     "0x090a8eae3204c76e36eebf3440cbde577e062953391760c37c363530fc1de246",
				Checkpoint: 12,
			}),

		MALFORMED_ROOT.New("unexpected type tag").
			WithMetadata(RootMetadata{
				Handle:     "0x1bf5e16fcfb6c4d293c550bc1333ec7a6ed8323a929bb2db477f63ff0e9b6a4c",
				Checkpoint: 99,
			}),

		NODE_LIMIT_EXCEEDED.New("too many nodes").
			WithMetadata(NodeLimitMetadata{
				Handle:   "0x82ee32196ab12750268815e005fae4c4db23a4272e52610c0c25a8288f05515a",
				MaxNodes: 1000,
				Level:    3,
			}),

		STRUCTURAL_CORRUPTION.New("duplicate child keys").
			WithMetadata(StructuralCorruptionMetadata{
				Handle:     "0x0f9d6fc9de7a0ee0dd98f7326619cd5ff74cc0bc6485cce80014f766e437c4ae",
				Checkpoint: 7,
				Keys:       []uint64{10, 20},
			}),

		INVALID_REQUEST.New("missing handle").
			WithMetadata(InvalidRequestMetadata{
				Field: "handle",
				Value: "",
			}),
	}
}

func TestErrorMetadata(t *testing.T) {
	fixtures := generateErrorFixtures()

	for _, err := range fixtures {
		require.NotNil(t, err)
		require.NotEmpty(t, err.Error())
		require.NotEmpty(t, err.CodeName())
		require.NotEmpty(t, err.Metadata())
		require.NotNil(t, err.Log())
	}
}

func TestErrorFormat(t *testing.T) {
	err := ROOT_NOT_FOUND.New("no record for %s", "0x2")
	require.Equal(t, "ROOT_NOT_FOUND (1): no record for 0x2", err.Error())
	require.Equal(t, uint16(1), err.Code())
	require.Equal(t, grpccodes.NotFound, err.GrpcCode())
}

func TestErrorMetadataFlattening(t *testing.T) {
	err := NODE_LIMIT_EXCEEDED.New("too many nodes").
		WithMetadata(NodeLimitMetadata{Handle: "0x2", MaxNodes: 10, Level: 1})

	metadata := err.Metadata()
	require.Equal(t, "0x2", metadata["handle"])
	require.Equal(t, "10", metadata["max_nodes"])
	require.Equal(t, "1", metadata["level"])
	require.Equal(t, 10, err.TypedMetadata().MaxNodes)
}

func TestCodeIs(t *testing.T) {
	cause := fmt.Errorf("timeout")
	err := ROOT_FETCH_FAILED.Wrap(cause)
	wrapped := fmt.Errorf("reconstruct: %w", err)

	require.True(t, ROOT_FETCH_FAILED.Is(wrapped))
	require.False(t, ROOT_NOT_FOUND.Is(wrapped))
	require.False(t, ROOT_NOT_FOUND.Is(nil))
	require.False(t, ROOT_NOT_FOUND.Is(cause))
	require.ErrorIs(t, wrapped, cause)
}
