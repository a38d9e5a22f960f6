// Package vim selects an editor binary that can act as a client-server
// vim and provides the files a headless launch needs.
package vim

import (
	"context"
	"strings"

	"github.com/sourcegraph/conc/iter"

	"github.com/Iron-Ham/vimbot/internal/errors"
	"github.com/Iron-Ham/vimbot/internal/shell"
)

// DefaultBinaries are the candidates probed when no binary is requested,
// in preference order.
var DefaultBinaries = []string{"vim", "mvim", "gvim"}

// serverFlag is the substring a client-server build prints in its --help.
const serverFlag = "--server"

// ProbeResult reports whether one candidate supports client-server mode.
type ProbeResult struct {
	Binary  string
	Capable bool
}

// Resolver picks the binary a session drives.
type Resolver struct {
	Runner shell.Runner

	// Candidates overrides DefaultBinaries when non-empty.
	Candidates []string
}

// NewResolver returns a Resolver probing the default candidates.
func NewResolver(runner shell.Runner) *Resolver {
	return &Resolver{Runner: runner}
}

// candidates returns the configured candidate list.
func (r *Resolver) candidates() []string {
	if len(r.Candidates) > 0 {
		return r.Candidates
	}
	return DefaultBinaries
}

// Resolve returns explicit when it supports client-server mode, failing
// with an IncompatibleBinary error otherwise. With no explicit binary it
// returns the first capable candidate, or a NoCompatibleBinary error.
func (r *Resolver) Resolve(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		if r.SupportsServerMode(ctx, explicit) {
			return explicit, nil
		}
		return "", errors.NewBinaryError(explicit)
	}

	cands := r.candidates()
	for _, res := range r.Probe(ctx, cands) {
		if res.Capable {
			return res.Binary, nil
		}
	}
	return "", errors.NewNoCompatibleBinaryError(cands)
}

// SupportsServerMode reports whether binary's --help output mentions
// --server. A binary that cannot be run is not capable.
func (r *Resolver) SupportsServerMode(ctx context.Context, binary string) bool {
	res, err := r.Runner.Run(ctx, binary, "--help")
	if err != nil {
		return false
	}
	return strings.Contains(res.Stdout, serverFlag)
}

// Probe checks every candidate concurrently. Results are in the order of
// candidates.
func (r *Resolver) Probe(ctx context.Context, candidates []string) []ProbeResult {
	return iter.Map(candidates, func(binary *string) ProbeResult {
		return ProbeResult{
			Binary:  *binary,
			Capable: r.SupportsServerMode(ctx, *binary),
		}
	})
}
