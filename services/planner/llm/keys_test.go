// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAPIKey_FromEnv(t *testing.T) {
	t.Setenv("WAYFINDER_TEST_KEY", "  sk-test-123  ")

	enc, err := LoadAPIKey("WAYFINDER_TEST_KEY", "")
	require.NoError(t, err)

	key, err := openKey(enc)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", key)
}

func TestLoadAPIKey_FromSecretFile(t *testing.T) {
	t.Setenv("WAYFINDER_TEST_KEY", "")
	path := filepath.Join(t.TempDir(), "openai_api_key")
	require.NoError(t, os.WriteFile(path, []byte("sk-from-file\n"), 0o600))

	enc, err := LoadAPIKey("WAYFINDER_TEST_KEY", path)
	require.NoError(t, err)

	key, err := openKey(enc)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", key)
}

func TestLoadAPIKey_EnvWinsOverFile(t *testing.T) {
	t.Setenv("WAYFINDER_TEST_KEY", "sk-from-env")
	path := filepath.Join(t.TempDir(), "openai_api_key")
	require.NoError(t, os.WriteFile(path, []byte("sk-from-file"), 0o600))

	enc, err := LoadAPIKey("WAYFINDER_TEST_KEY", path)
	require.NoError(t, err)

	key, err := openKey(enc)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", key)
}

func TestLoadAPIKey_Missing(t *testing.T) {
	t.Setenv("WAYFINDER_TEST_KEY", "")
	path := filepath.Join(t.TempDir(), "does_not_exist")

	_, err := LoadAPIKey("WAYFINDER_TEST_KEY", path)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestLoadAPIKey_OpenIsRepeatable(t *testing.T) {
	t.Setenv("WAYFINDER_TEST_KEY", "sk-repeat")

	enc, err := LoadAPIKey("WAYFINDER_TEST_KEY", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		key, err := openKey(enc)
		require.NoError(t, err)
		assert.Equal(t, "sk-repeat", key)
	}
}
