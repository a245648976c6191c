package cardnum_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velopay/cardledger/internal/cardnum"
)

func TestValidate(t *testing.T) {
	require.NoError(t, cardnum.Validate("4532015112830366"))
	require.NoError(t, cardnum.Validate("4111111111111111"))

	require.Error(t, cardnum.Validate(""))
	require.Error(t, cardnum.Validate("4532015112830367")) // wrong check digit
	require.Error(t, cardnum.Validate("45320151"))         // too short
	require.Error(t, cardnum.Validate("4532O15112830366")) // letter O
}

func TestGenerate(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		pan, err := cardnum.Generate("453201")
		require.NoError(t, err)
		require.Len(t, pan, 16)
		require.True(t, strings.HasPrefix(pan, "453201"))
		require.NoError(t, cardnum.Validate(pan))
		seen[pan] = struct{}{}
	}
	require.Greater(t, len(seen), 1)

	_, err := cardnum.Generate("12345")
	require.Error(t, err)
}

func TestMask(t *testing.T) {
	require.Equal(t, "4532****0366", cardnum.Mask("4532015112830366"))
	require.Equal(t, "4532****0366", cardnum.Mask("4532 0151 1283 0366"))
	require.Equal(t, "****", cardnum.Mask("1234567"))
	require.Equal(t, "****", cardnum.Mask(""))
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "4532015112830366", cardnum.Normalize(" 4532-0151 1283\t0366 "))
}

func TestHashHMAC(t *testing.T) {
	key := []byte("pepper")
	a := cardnum.HashHMAC("4532015112830366", key)
	b := cardnum.HashHMAC("4532015112830366", key)
	require.Equal(t, a, b)

	c := cardnum.HashHMAC("4532015112830366", []byte("other"))
	require.NotEqual(t, a, c)
}
