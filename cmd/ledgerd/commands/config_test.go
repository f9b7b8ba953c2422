package commands

import (
	"testing"

	"github.com/mosaicnetworks/ledgerdriver/src/process"
)

func TestBindFlagsAndEnvironment(t *testing.T) {
	t.Setenv(process.EnvDebugPort, "5005")
	t.Setenv(process.EnvName, "Bank A")
	t.Setenv(process.PropertyEnv("ledger.plugins"), "on")

	_config = NewDefaultCLIConfig()
	cmd := NewRootCmd()
	if err := cmd.ParseFlags([]string{"--base-directory=/tmp/BankA", "--logging-level=DEBUG", "--no-local-shell"}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := bindFlagsLoadViper(cmd); err != nil {
		t.Fatalf("err: %v", err)
	}

	if _config.BaseDirectory != "/tmp/BankA" {
		t.Fatalf("BaseDirectory should be /tmp/BankA, not %s", _config.BaseDirectory)
	}
	if _config.LoggingLevel != "DEBUG" {
		t.Fatalf("LoggingLevel should be DEBUG, not %s", _config.LoggingLevel)
	}
	if !_config.NoLocalShell {
		t.Fatal("NoLocalShell should be set")
	}
	if _config.DebugPort != 5005 {
		t.Fatalf("DebugPort should be 5005, not %d", _config.DebugPort)
	}
	if _config.Name != "Bank A" {
		t.Fatalf("Name should be Bank A, not %s", _config.Name)
	}
	if v := systemProperties()["LEDGER_PLUGINS"]; v != "on" {
		t.Fatalf("property LEDGER_PLUGINS should be on, not %q", v)
	}
}
