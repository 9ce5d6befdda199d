// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package secrets

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/relforge/cmd/relforge/config"
)

func lookupOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromEnv_Missing(t *testing.T) {
	for name, env := range map[string]map[string]string{
		"unset": {},
		"blank": {"GITHUB_TOKEN": "   "},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv("GITHUB_TOKEN", lookupOf(env))
			assert.ErrorIs(t, err, ErrMissingCredential)
			assert.ErrorIs(t, err, config.ErrConfiguration)
			assert.Contains(t, err.Error(), "GITHUB_TOKEN")
		})
	}
}

func TestCredential_Use(t *testing.T) {
	cred, err := FromEnv("GITHUB_TOKEN", lookupOf(map[string]string{"GITHUB_TOKEN": " ghp_test \n"}))
	require.NoError(t, err)
	assert.Equal(t, "env:GITHUB_TOKEN", cred.Source())

	var seen string
	require.NoError(t, cred.Use(func(token string) error {
		seen = string([]byte(token))
		return nil
	}))
	assert.Equal(t, "ghp_test", seen)

	cred.Destroy()
	assert.ErrorIs(t, cred.Use(func(string) error { return nil }), ErrDestroyed)
}

func TestCredential_NeverPrinted(t *testing.T) {
	cred := New([]byte("ghp_secret"), "test")

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("loaded", "credential", cred)

	assert.NotContains(t, buf.String(), "ghp_secret")
	assert.Contains(t, buf.String(), "redacted")
	assert.NotContains(t, cred.String(), "ghp_secret")
}

func TestNew_WipesInput(t *testing.T) {
	raw := []byte("ghp_wipe")
	_ = New(raw, "test")
	assert.Equal(t, make([]byte, len(raw)), raw)
}

func TestTransport_SetsBearerHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client := &http.Client{Transport: &Transport{Credential: New([]byte("ghp_x"), "test")}}
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer ghp_x", got)
	assert.Empty(t, req.Header.Get("Authorization"), "caller's request is not mutated")
}
