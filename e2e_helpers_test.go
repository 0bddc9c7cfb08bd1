//go:build !ci

package resultplay_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	dockerImage           = "chromedp/headless-shell:stable"
	chromeContainerPrefix = "chrome-e2e-resultplay-"
)

// setupDockerChrome starts a headless Chrome container and returns a
// chromedp context bounded by timeout. It skips the test without Docker.
func setupDockerChrome(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()

	port, err := freePort()
	if err != nil {
		t.Fatalf("failed to allocate Chrome port: %v", err)
	}
	if err := startDockerChrome(t, port); err != nil {
		t.Fatalf("failed to start Docker Chrome: %v", err)
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), fmt.Sprintf("http://localhost:%d", port))
	ctx, ctxCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(t.Logf))
	ctx, timeoutCancel := context.WithTimeout(ctx, timeout)

	t.Cleanup(func() {
		timeoutCancel()
		ctxCancel()
		allocCancel()
		stopDockerChrome(t, port)
	})
	return ctx
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func startDockerChrome(t *testing.T, debugPort int) error {
	t.Helper()

	if _, err := exec.Command("docker", "version").CombinedOutput(); err != nil {
		t.Skip("Docker not available, skipping E2E test")
	}

	name := fmt.Sprintf("%s%d", chromeContainerPrefix, debugPort)
	_, _ = exec.Command("docker", "rm", "-f", name).CombinedOutput()

	if _, err := exec.Command("docker", "image", "inspect", dockerImage).CombinedOutput(); err != nil {
		t.Log("Pulling chromedp/headless-shell Docker image...")
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if out, err := exec.CommandContext(ctx, "docker", "pull", dockerImage).CombinedOutput(); err != nil {
			return fmt.Errorf("failed to pull %s: %w\n%s", dockerImage, err, out)
		}
	}

	// On Linux the container shares the host network; elsewhere Docker runs
	// in a VM, so map the port to the image's default 9222.
	args := []string{"run", "-d", "--rm", "--memory", "512m", "--name", name}
	if runtime.GOOS == "linux" {
		args = append(args, "--network", "host", dockerImage, fmt.Sprintf("--remote-debugging-port=%d", debugPort))
	} else {
		args = append(args, "-p", fmt.Sprintf("%d:9222", debugPort), dockerImage)
	}
	if _, err := exec.Command("docker", args...).Output(); err != nil {
		return fmt.Errorf("failed to start Chrome container: %w", err)
	}

	client := &http.Client{Timeout: 2 * time.Second}
	versionURL := fmt.Sprintf("http://localhost:%d/json/version", debugPort)
	var lastErr error
	for range 120 {
		resp, err := client.Get(versionURL)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		lastErr = err
		time.Sleep(500 * time.Millisecond)
	}

	if out, err := exec.Command("docker", "logs", "--tail", "50", name).CombinedOutput(); err == nil {
		t.Logf("Chrome container logs:\n%s", out)
	}
	_, _ = exec.Command("docker", "rm", "-f", name).CombinedOutput()
	return fmt.Errorf("Chrome failed to start within 60 seconds: %w", lastErr)
}

func stopDockerChrome(t *testing.T, debugPort int) {
	t.Helper()
	name := fmt.Sprintf("%s%d", chromeContainerPrefix, debugPort)
	if out, err := exec.Command("docker", "rm", "-f", name).CombinedOutput(); err != nil &&
		!strings.Contains(string(out), "No such container") {
		t.Logf("Warning: failed to remove Chrome container: %v (%s)", err, out)
	}
}

// chromeURL rewrites an httptest URL so the browser in Docker can reach it.
func chromeURL(serverURL string) string {
	host := "localhost"
	if runtime.GOOS != "linux" {
		host = "host.docker.internal"
	}
	u := strings.Replace(serverURL, "127.0.0.1", host, 1)
	return strings.Replace(u, "[::1]", host, 1)
}
