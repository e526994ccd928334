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

import "errors"

var (
	// ErrNoAPIKey indicates no API key could be resolved from the
	// environment or the secrets file.
	ErrNoAPIKey = errors.New("no api key available")

	// ErrGenerationFailed indicates the backend could not produce a
	// completion after all transport retries.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrEmptyCompletion indicates the backend returned no content.
	ErrEmptyCompletion = errors.New("empty completion")

	// ErrSchemaValidation indicates a completion that parsed as JSON but
	// violated the expected schema, or did not parse at all.
	ErrSchemaValidation = errors.New("schema validation failed")

	// ErrUnknownBackend indicates an unrecognized backend name in config.
	ErrUnknownBackend = errors.New("unknown llm backend")
)
