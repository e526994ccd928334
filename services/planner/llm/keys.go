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
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
)

// =============================================================================
// Package Variables
// =============================================================================

var memguardInitOnce sync.Once

// initMemguard wires memguard's interrupt handler so enclaves are wiped on
// SIGINT/SIGTERM, and probes the locked-memory limit. Safe to call from
// every key load; runs once.
func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		if ok, limitKB := checkMlockLimit(); !ok {
			slog.Warn("mlock limit is low, key pages may be swappable",
				"limit_kb", limitKB)
		}
	})
}

// =============================================================================
// Key Loading
// =============================================================================

// LoadAPIKey resolves an API key into an encrypted enclave. The environment
// variable wins; the secret file (a conventional /run/secrets mount) is the
// fallback. The plaintext copy is wiped as soon as the enclave seals it.
//
// Inputs:
//   - envVar: environment variable name, e.g. "OPENAI_API_KEY". May be empty.
//   - secretFile: path to a file holding the key. May be empty.
//
// Outputs:
//   - *memguard.Enclave: sealed key, opened per use.
//   - error: ErrNoAPIKey when neither source yields a key.
func LoadAPIKey(envVar, secretFile string) (*memguard.Enclave, error) {
	initMemguard()

	if envVar != "" {
		if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
			return memguard.NewEnclave([]byte(v)), nil
		}
	}

	if secretFile != "" {
		raw, err := os.ReadFile(secretFile)
		if err == nil {
			trimmed := []byte(strings.TrimSpace(string(raw)))
			wipe(raw)
			if len(trimmed) > 0 {
				return memguard.NewEnclave(trimmed), nil
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read secret file %s: %w", secretFile, err)
		}
	}

	return nil, fmt.Errorf("%w: tried env %q and file %q", ErrNoAPIKey, envVar, secretFile)
}

// openKey extracts the key for handing to a client constructor. The locked
// buffer is destroyed before returning; the returned string is the caller's
// to guard. The string conversion copies because buf.String() aliases the
// buffer memory, which is wiped on Destroy.
func openKey(enclave *memguard.Enclave) (string, error) {
	buf, err := enclave.Open()
	if err != nil {
		return "", fmt.Errorf("open key enclave: %w", err)
	}
	key := string(buf.Bytes())
	buf.Destroy()
	return key, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// PurgeSecrets wipes all memguard-held material. Called during graceful
// shutdown.
func PurgeSecrets() {
	memguard.Purge()
	slog.Info("Purged secret enclaves")
}
