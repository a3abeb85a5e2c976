//go:build e2e

package e2e

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

const e2eAPIKey = "e2e-test-api-key"

// larderServer manages a running `larder serve` process.
type larderServer struct {
	cmd     *exec.Cmd
	dataDir string
	address string
	logFile *os.File
}

// startLarder launches the server on a fresh data directory and waits for it
// to become healthy. Configuration is passed entirely via environment.
func startLarder(t *testing.T) *larderServer {
	t.Helper()
	return startLarderIn(t, t.TempDir(), "larder.log")
}

func startLarderIn(t *testing.T, dataDir, logName string) *larderServer {
	t.Helper()
	if larderBin == "" {
		t.Skip("larder binary not available (set LARDER_BIN or add to PATH)")
	}

	port := freePort(t)
	cmd := exec.Command(larderBin, "serve")
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("LARDER_PORT=%d", port),
		"LARDER_DB_PATH="+filepath.Join(dataDir, "larder.db"),
		"LARDER_API_KEY="+e2eAPIKey,
		"LARDER_LEDGER_BACKEND=sqlite",
		"LARDER_CONFIG_PATH="+filepath.Join(dataDir, "nonexistent.yaml"), // skip YAML file
	)

	lf, err := os.Create(filepath.Join(dataDir, logName))
	if err != nil {
		t.Fatalf("create log file: %v", err)
	}
	cmd.Stdout = lf
	cmd.Stderr = lf

	if err := cmd.Start(); err != nil {
		lf.Close()
		t.Fatalf("start larder: %v", err)
	}

	s := &larderServer{
		cmd:     cmd,
		dataDir: dataDir,
		address: fmt.Sprintf("127.0.0.1:%d", port),
		logFile: lf,
	}
	t.Cleanup(func() {
		s.stop()
		lf.Close()
	})

	if err := s.waitHealthy(10 * time.Second); err != nil {
		t.Fatalf("larder not healthy: %v", err)
	}
	return s
}

// stop sends SIGINT and waits for the process to exit.
func (s *larderServer) stop() error {
	if s.cmd == nil || s.cmd.Process == nil || s.cmd.ProcessState != nil {
		return nil
	}
	_ = s.cmd.Process.Signal(os.Interrupt)
	return s.cmd.Wait()
}

// restartOnSameData stops the server and starts a new one on the same database.
func (s *larderServer) restartOnSameData(t *testing.T) *larderServer {
	t.Helper()
	if err := s.stop(); err != nil {
		t.Fatalf("stop larder: %v", err)
	}
	time.Sleep(200 * time.Millisecond) // allow port release
	return startLarderIn(t, s.dataDir, "larder-restart.log")
}

func (s *larderServer) baseURL() string {
	return "http://" + s.address
}

func (s *larderServer) waitHealthy(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := s.baseURL() + "/api/v1/health"

	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("larder not healthy after %s", timeout)
}

// cli runs a remote larder command against s.
func (s *larderServer) cli(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(larderBin, append(args, "--server", s.baseURL())...)
	cmd.Env = append(os.Environ(), "LARDER_API_KEY="+e2eAPIKey)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// freePort returns a free TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
