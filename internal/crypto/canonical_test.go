package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-legal/custodia/internal/crypto"
)

func TestCanonicalJSON(t *testing.T) {
	t.Parallel()

	t.Run("key order does not affect output", func(t *testing.T) {
		t.Parallel()

		first, err := crypto.CanonicalJSON(map[string]any{"b": 2, "a": 1})
		require.NoError(t, err)

		second, err := crypto.CanonicalJSON(map[string]any{"a": 1, "b": 2})
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, `{"a":1,"b":2}`, string(first))
	})

	t.Run("nested objects are sorted recursively", func(t *testing.T) {
		t.Parallel()

		out, err := crypto.CanonicalJSON(map[string]any{
			"outer": map[string]any{"z": true, "a": "x"},
			"count": 3,
		})
		require.NoError(t, err)

		assert.Equal(t, `{"count":3,"outer":{"a":"x","z":true}}`, string(out))
	})

	t.Run("array order is preserved", func(t *testing.T) {
		t.Parallel()

		out, err := crypto.CanonicalJSON(map[string]any{"items": []any{3, 1, 2}})
		require.NoError(t, err)

		assert.Equal(t, `{"items":[3,1,2]}`, string(out))
	})

	t.Run("structs normalize through json tags", func(t *testing.T) {
		t.Parallel()

		type payload struct {
			B int    `json:"b"`
			A string `json:"a"`
		}

		out, err := crypto.CanonicalJSON(payload{B: 2, A: "one"})
		require.NoError(t, err)

		assert.Equal(t, `{"a":"one","b":2}`, string(out))
	})

	t.Run("no html escaping", func(t *testing.T) {
		t.Parallel()

		out, err := crypto.CanonicalJSON(map[string]any{"url": "a&b<c>"})
		require.NoError(t, err)

		assert.Equal(t, `{"url":"a&b<c>"}`, string(out))
	})

	t.Run("numbers keep their literal form", func(t *testing.T) {
		t.Parallel()

		out, err := crypto.CanonicalJSON(map[string]any{"n": 10000000000})
		require.NoError(t, err)

		assert.Equal(t, `{"n":10000000000}`, string(out))
	})

	t.Run("nil map serializes as null", func(t *testing.T) {
		t.Parallel()

		out, err := crypto.CanonicalJSON(map[string]any(nil))
		require.NoError(t, err)

		assert.Equal(t, `null`, string(out))
	})
}
