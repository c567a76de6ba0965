package directory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harvest-hub/harvesthub/internal/shared"
)

func TestDisplayName(t *testing.T) {
	require.Equal(t, "Wanjiku Kamau", Farmer{FirstName: "Wanjiku", Surname: "Kamau"}.DisplayName())
	require.Equal(t, "Kamau", Farmer{Surname: "Kamau"}.DisplayName())
}

func TestErrFarmerNotFoundWrapsNotFound(t *testing.T) {
	require.ErrorIs(t, ErrFarmerNotFound, shared.ErrNotFound)
}
