package preflight

import (
	"fmt"
	"os/exec"
	"strings"

	"spikecurate/internal/config"
)

// Requirement defines an external binary spikecurate relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// BinaryStatus reports the availability of a binary.
type BinaryStatus struct {
	Requirement
	Path      string
	Available bool
	Detail    string
}

// CheckBinaries resolves each requirement on PATH.
func CheckBinaries(requirements []Requirement) []BinaryStatus {
	results := make([]BinaryStatus, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		status := BinaryStatus{Requirement: req}
		switch path, err := exec.LookPath(req.Command); {
		case req.Command == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", req.Command)
		default:
			status.Available = true
			status.Path = path
		}
		results = append(results, status)
	}
	return results
}

// CheckSystemDeps evaluates the binaries the configured stages invoke.
func CheckSystemDeps(cfg *config.Config) []BinaryStatus {
	if cfg == nil {
		return nil
	}
	return CheckBinaries([]Requirement{
		{
			Name:        "Toolkit bridge",
			Command:     cfg.Toolkit.Binary,
			Description: "Required for waveform extraction, whitening and quality metrics",
		},
	})
}
