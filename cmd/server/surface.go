package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"

	"socialpulse/backend/internal/orchestrator"
)

// browserSurface drives the external authorization window through a browser
// process. The process is started in app mode so it exits when the user
// closes the window, which is what the handshake lifecycle watch keys on.
type browserSurface struct {
	mu  sync.Mutex
	cmd *exec.Cmd
}

// openBrowserSurface is the SurfaceOpener wired into the handshake manager.
// The surface starts blank; the process is only spawned on Navigate.
func openBrowserSurface() (orchestrator.ExternalSurface, error) {
	return &browserSurface{}, nil
}

func (b *browserSurface) Navigate(url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cmd != nil {
		_ = b.cmd.Process.Kill()
	}

	name, args := browserCommand(url)
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	b.cmd = cmd

	// reap the process so IsOpen can observe its exit
	go func() { _ = cmd.Wait() }()
	return nil
}

func (b *browserSurface) Focus() {
	// no portable way to raise a browser window; the fresh Navigate already
	// brought it to the front
}

func (b *browserSurface) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmd == nil || b.cmd.Process == nil {
		return false
	}
	if b.cmd.ProcessState != nil {
		return false
	}
	// signal 0 probes for existence without delivering anything
	return b.cmd.Process.Signal(syscall.Signal(0)) == nil
}

func (b *browserSurface) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmd != nil && b.cmd.ProcessState == nil && b.cmd.Process != nil {
		_ = b.cmd.Process.Kill()
	}
	b.cmd = nil
}

// browserCommand picks the browser launcher. BROWSER overrides the platform
// default and is invoked with the URL as its only argument.
func browserCommand(url string) (string, []string) {
	if custom := os.Getenv("BROWSER"); custom != "" {
		return custom, []string{url}
	}
	switch runtime.GOOS {
	case "darwin":
		// -W keeps the launcher alive until the opened app exits
		return "open", []string{"-W", url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}
