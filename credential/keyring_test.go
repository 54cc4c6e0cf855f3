// SPDX-License-Identifier: GPL-3.0-or-later
package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyring(t *testing.T) {
	k := NewKeyring(keyring.NewArrayKeyring([]keyring.Item{
		{Key: "sales", Data: []byte("secret")},
	}))

	password, err := k.Password("sales")
	require.NoError(t, err)
	assert.Equal(t, "secret", password)

	_, err = k.Password("support")
	assert.ErrorIs(t, err, ErrNoPassword)
	assert.EqualError(t, err, "no password stored for account support")

	require.NoError(t, k.SetPassword("support", "hunter2"))
	password, err = k.Password("support")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", password)

	require.NoError(t, k.RemovePassword("support"))
	_, err = k.Password("support")
	assert.ErrorIs(t, err, ErrNoPassword)
}
