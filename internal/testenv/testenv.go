// Package testenv holds helpers shared by container-backed tests.
package testenv

import (
	"os"
	"os/exec"
	"strings"
	"testing"
)

func init() {
	// Point testcontainers at the podman socket when no DOCKER_HOST is set.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			if sock := strings.TrimSpace(string(out)); sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// RequireContainers skips the test unless a container runtime is available
// and SKIP_INTEGRATION is not set.
func RequireContainers(t *testing.T) {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping container tests")
	}
	if testing.Short() {
		t.Skip("short mode, skipping container tests")
	}
	if os.Getenv("DOCKER_HOST") != "" {
		return
	}
	for _, bin := range []string{"docker", "podman"} {
		if _, err := exec.LookPath(bin); err == nil {
			return
		}
	}
	t.Skip("no container runtime found, skipping container tests")
}
