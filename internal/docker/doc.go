// Package docker runs the model bridge in containers through the Docker
// Engine SDK and manages the containers it leaves behind.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - The docker model backend: one container per model invocation, with
//     the work directory bind-mounted at /work
//   - Container labels recording the run label, period and creation time
//     (labels are the only record of which containers belong to a run)
//   - Listing and removing leftover run containers
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
