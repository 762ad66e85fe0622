package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-legal/custodia/internal/crypto"
)

func TestNewHasher(t *testing.T) {
	t.Parallel()

	t.Run("accepts sha256", func(t *testing.T) {
		t.Parallel()

		h, err := crypto.NewHasher(crypto.SHA256)
		require.NoError(t, err)
		assert.Equal(t, crypto.SHA256, h.Algorithm())
	})

	t.Run("accepts sha3-256", func(t *testing.T) {
		t.Parallel()

		h, err := crypto.NewHasher(crypto.SHA3256)
		require.NoError(t, err)
		assert.Equal(t, crypto.SHA3256, h.Algorithm())
	})

	t.Run("rejects unknown algorithm", func(t *testing.T) {
		t.Parallel()

		_, err := crypto.NewHasher("md5")
		require.ErrorIs(t, err, crypto.ErrUnknownAlgorithm)
	})
}

func TestHasherContentHash(t *testing.T) {
	t.Parallel()

	t.Run("sha256 known vector", func(t *testing.T) {
		t.Parallel()

		h, err := crypto.NewHasher(crypto.SHA256)
		require.NoError(t, err)

		// sha256("abc")
		assert.Equal(t,
			"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
			h.ContentHash([]byte("abc")),
		)
	})

	t.Run("sha3-256 known vector", func(t *testing.T) {
		t.Parallel()

		h, err := crypto.NewHasher(crypto.SHA3256)
		require.NoError(t, err)

		// sha3-256("abc")
		assert.Equal(t,
			"3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532",
			h.ContentHash([]byte("abc")),
		)
	})

	t.Run("algorithms disagree on the same input", func(t *testing.T) {
		t.Parallel()

		sha2, err := crypto.NewHasher(crypto.SHA256)
		require.NoError(t, err)
		sha3h, err := crypto.NewHasher(crypto.SHA3256)
		require.NoError(t, err)

		assert.NotEqual(t, sha2.ContentHash([]byte("abc")), sha3h.ContentHash([]byte("abc")))
	})
}
