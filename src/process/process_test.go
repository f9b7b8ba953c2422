//go:build !windows

package process

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/ledgerdriver/src/common"
)

func TestStartReportsExitCode(t *testing.T) {
	dir := t.TempDir()
	p, err := Start(Spec{
		Path:             "/bin/sh",
		Args:             []string{"-c", "echo oops >&2; exit 3"},
		ErrorLogPath:     filepath.Join(dir, "logs", "error.log"),
		WorkingDirectory: dir,
	}, common.NewTestEntry(t, "process"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	p.Wait()

	if p.Alive() {
		t.Fatal("process should be dead")
	}
	if code := p.ExitCode(); code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}

	out, err := os.ReadFile(filepath.Join(dir, "logs", "error.log"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if strings.TrimSpace(string(out)) != "oops" {
		t.Fatalf("unexpected error log %q", out)
	}
}

func TestTerminate(t *testing.T) {
	p, err := Start(Spec{Path: "/bin/sleep", Args: []string{"30"}}, common.NewTestEntry(t, "process"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !p.Alive() {
		t.Fatal("process should be alive")
	}
	if p.ExitCode() != -1 {
		t.Fatalf("live process must report -1")
	}

	if err := p.Terminate(); err != nil {
		t.Fatalf("err: %v", err)
	}

	select {
	case <-p.Exited():
	case <-time.After(5 * time.Second):
		p.Kill()
		t.Fatal("process ignored SIGTERM")
	}
}

func TestEnvironment(t *testing.T) {
	t.Setenv(EnvPluginPath, "/opt/plugins")

	env := Spec{
		Name:              "Bank A",
		DebugPort:         5005,
		PluginDirectories: []string{"/nodes/BankA/plugins", "/opt/shared"},
		Properties:        map[string]string{"visualvm.display-name": "ledger-BankA"},
	}.Environment(nil)

	want := []string{
		EnvName + "=Bank A",
		EnvDebugPort + "=5005",
		EnvPluginPath + "=" + strings.Join([]string{"/opt/plugins", "/nodes/BankA/plugins", "/opt/shared"}, string(os.PathListSeparator)),
		EnvTempDir + "=" + os.TempDir(),
		"LEDGER_PROP_VISUALVM_DISPLAY_NAME=ledger-BankA",
	}
	if len(env) != len(want) {
		t.Fatalf("expected %v, got %v", want, env)
	}
	for i := range want {
		if env[i] != want[i] {
			t.Fatalf("entry %d: expected %s, got %s", i, want[i], env[i])
		}
	}
}

func TestCommandLine(t *testing.T) {
	s := Spec{Path: "/usr/bin/ledgerd", Args: []string{"--base-directory=/tmp/Bank A", "--no-local-shell"}}
	if got := s.CommandLine(); got != `/usr/bin/ledgerd '--base-directory=/tmp/Bank A' --no-local-shell` {
		t.Fatalf("unexpected command line %s", got)
	}
}

func TestStub(t *testing.T) {
	s := NewStub(7)
	s.IgnoreTerminate = true
	s.Terminate()
	if !s.Alive() {
		t.Fatal("stub should ignore terminate")
	}
	s.Kill()
	if s.Alive() || s.ExitCode() != 137 {
		t.Fatalf("unexpected stub state: alive=%v code=%d", s.Alive(), s.ExitCode())
	}
	term, killed := s.Signals()
	if term != 1 || killed != 1 {
		t.Fatalf("unexpected signals %d %d", term, killed)
	}
}
