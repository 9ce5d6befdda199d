// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secrets holds the release credential in guarded memory.
//
// The bearer token is read once from the environment, sealed into a
// memguard Enclave (encrypted, outside the Go heap) and only opened for the
// duration of a single HTTP request by Transport. It is never written to
// config files, logs or the ledger.
package secrets

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/awnumar/memguard"

	"github.com/AleutianAI/relforge/cmd/relforge/config"
)

// ErrMissingCredential means the credential environment variable is unset
// or empty. It matches config.ErrConfiguration.
var ErrMissingCredential = fmt.Errorf("%w: missing release credential", config.ErrConfiguration)

// ErrDestroyed is returned when a destroyed Credential is used.
var ErrDestroyed = errors.New("credential destroyed")

// Credential is a sealed bearer token.
//
// # Thread Safety
//
// Use is safe for concurrent callers. Destroy must not race with Use.
type Credential struct {
	enclave *memguard.Enclave
	source  string
}

// FromEnv seals the value of the environment variable name.
//
// # Inputs
//
//   - name: Variable name, e.g. "GITHUB_TOKEN"
//   - lookup: os.LookupEnv or a test double
//
// # Outputs
//
//   - *Credential: The sealed token
//   - error: ErrMissingCredential when unset or blank
func FromEnv(name string, lookup func(string) (string, bool)) (*Credential, error) {
	v, ok := lookup(name)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return nil, fmt.Errorf("%w: environment variable %s is not set", ErrMissingCredential, name)
	}
	return New([]byte(v), "env:"+name), nil
}

// New seals token. The token slice is wiped.
func New(token []byte, source string) *Credential {
	return &Credential{enclave: memguard.NewEnclave(token), source: source}
}

// Source describes where the credential came from, e.g. "env:GITHUB_TOKEN".
func (c *Credential) Source() string {
	return c.source
}

// Use opens the credential, passes it to fn and wipes the plaintext when fn
// returns. fn must not retain the string.
func (c *Credential) Use(fn func(token string) error) error {
	if c == nil || c.enclave == nil {
		return ErrDestroyed
	}
	buf, err := c.enclave.Open()
	if err != nil {
		return fmt.Errorf("open credential: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.String())
}

// Destroy drops the enclave reference. Further Use calls fail.
func (c *Credential) Destroy() {
	c.enclave = nil
}

// String never reveals the token.
func (c *Credential) String() string {
	return "[redacted " + c.source + "]"
}

// LogValue keeps the token out of slog output.
func (c *Credential) LogValue() slog.Value {
	return slog.StringValue(c.String())
}

// =============================================================================
// HTTP Transport
// =============================================================================

// Transport adds "Authorization: Bearer <token>" to each request.
type Transport struct {
	Credential *Credential

	// Base is the underlying transport. Default: http.DefaultTransport.
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	clone := req.Clone(req.Context())
	if err := t.Credential.Use(func(token string) error {
		clone.Header.Set("Authorization", "Bearer "+token)
		return nil
	}); err != nil {
		return nil, err
	}
	return base.RoundTrip(clone)
}

var _ http.RoundTripper = (*Transport)(nil)
