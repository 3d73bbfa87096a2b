// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, TransportWebsocket, c.Transport.Kind)
	assert.Equal(t, "messagehub", c.Hub.Path)
	assert.Equal(t, 2*time.Second, c.Messaging.TypingTimeout)
	assert.Equal(t, 3*time.Minute, c.Messaging.NotifyCooldown)
	assert.Equal(t, 50, c.Messaging.PreviewLength)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "efmsg.yaml")
	data := []byte("token: from-file\napi:\n  url: http://file.example/api/\nmessaging:\n  typing_timeout: 5s\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("EFMSG_TOKEN", "from-env")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.Token)
	assert.Equal(t, "http://file.example/api/", c.API.URL)
	assert.Equal(t, 5*time.Second, c.Messaging.TypingTimeout)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c, err := Load("")
		require.NoError(t, err)
		c.Token = "t"
		return c
	}

	t.Run("ok", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("missing token", func(t *testing.T) {
		c := base()
		c.Token = ""
		var verr *ValidationError
		assert.ErrorAs(t, c.Validate(), &verr)
	})

	t.Run("unknown transport", func(t *testing.T) {
		c := base()
		c.Transport.Kind = "carrier-pigeon"
		assert.Error(t, c.Validate())
	})
}
