// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gates

import "context"

// Channel delivers presentations to a human and collects their decisions.
//
// # Description
//
// Present must not block on the human; it hands the presentation off and
// returns. Decisions are delivered asynchronously on the Decisions stream
// and fed to the engine's Resume. The HTTP and CLI surfaces decide gates
// directly against the engine; Channel exists for surfaces that need a
// transport, such as the watched decision-file directory.
//
// # Thread Safety
//
// Implementations are safe for concurrent use.
type Channel interface {
	// Present surfaces a pending gate. Idempotent per presentation ID.
	Present(ctx context.Context, p *Presentation) error

	// Decisions streams decisions as the human produces them. The
	// channel closes when the Channel is closed.
	Decisions() <-chan Decision

	// Close stops delivery and releases resources.
	Close() error
}
