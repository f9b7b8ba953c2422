package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/ledgerdriver/src/identity"
	"github.com/sirupsen/logrus"
)

func testSettings(base string) map[string]interface{} {
	return map[string]interface{}{
		KeyMyLegalName:               "CN=Bank A-10002,O=Bank A,L=London,C=GB",
		KeyBaseDirectory:             base,
		KeyP2PAddress:                "localhost:10002",
		KeyRPCAddress:                "localhost:10003",
		KeyWebAddress:                "localhost:10004",
		KeyExtraAdvertisedServiceIds: []string{identity.SimpleNotary},
		KeyNetworkMapService: NetworkMap{
			Address:   "localhost:10000",
			LegalName: string(identity.DummyMap.Name),
		}.ToMap(),
		KeyUseTestClock: true,
		KeyRPCUsers: []map[string]interface{}{
			User{Username: "user1", Password: "test", Permissions: []string{"ALL"}}.ToMap(),
		},
		KeyVerifierType: string(OutOfProcess),
	}
}

func TestWriteLoadParse(t *testing.T) {
	base := t.TempDir()

	if err := Write(base, testSettings(base)); err != nil {
		t.Fatalf("err: %v", err)
	}

	v, err := Load(base, false, nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	conf, err := Parse(v)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if conf.LegalName().CommonName() != "Bank A-10002" {
		t.Fatalf("unexpected legal name %s", conf.MyLegalName)
	}
	if conf.P2PAddress != "localhost:10002" || conf.RPCAddress != "localhost:10003" || conf.WebAddress != "localhost:10004" {
		t.Fatalf("unexpected addresses %s %s %s", conf.P2PAddress, conf.RPCAddress, conf.WebAddress)
	}
	if conf.NetworkMapService == nil || conf.NetworkMapService.Address != "localhost:10000" {
		t.Fatalf("unexpected network map %#v", conf.NetworkMapService)
	}
	if conf.NetworkMapService.LegalName != string(identity.DummyMap.Name) {
		t.Fatalf("unexpected network map name %s", conf.NetworkMapService.LegalName)
	}
	if conf.IsNetworkMap() {
		t.Fatalf("node with a network map entry is not the network map")
	}
	if !conf.UseTestClock {
		t.Fatalf("useTestClock should be set")
	}
	if len(conf.RPCUsers) != 1 || conf.RPCUsers[0].Username != "user1" || conf.RPCUsers[0].Password != "test" {
		t.Fatalf("unexpected rpc users %#v", conf.RPCUsers)
	}
	if conf.VerifierType != OutOfProcess {
		t.Fatalf("unexpected verifier type %s", conf.VerifierType)
	}

	services, err := conf.AdvertisedServices()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(services) != 1 || !services[0].IsNotary() {
		t.Fatalf("unexpected services %v", services)
	}

	// defaults
	if conf.TCPTimeout != DefaultTCPTimeout {
		t.Fatalf("TCPTimeout should default to %v, not %v", DefaultTCPTimeout, conf.TCPTimeout)
	}
	if !conf.DevMode {
		t.Fatalf("devMode should default to true")
	}
}

func TestLoadOverridesWin(t *testing.T) {
	base := t.TempDir()

	if err := Write(base, testSettings(base)); err != nil {
		t.Fatalf("err: %v", err)
	}

	v, err := Load(base, false, map[string]interface{}{
		KeyP2PAddress: "localhost:20000",
		KeyTCPTimeout: "3s",
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	conf, err := Parse(v)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if conf.P2PAddress != "localhost:20000" {
		t.Fatalf("override should win, got %s", conf.P2PAddress)
	}
	if conf.TCPTimeout != 3*time.Second {
		t.Fatalf("override should win, got %v", conf.TCPTimeout)
	}
	if conf.RPCAddress != "localhost:10003" {
		t.Fatalf("file value should survive, got %s", conf.RPCAddress)
	}
}

func TestLoadMissing(t *testing.T) {
	base := t.TempDir()

	if _, err := Load(base, false, nil); err == nil {
		t.Fatalf("Load should fail without node.conf")
	}

	v, err := Load(base, true, map[string]interface{}{KeyMyLegalName: "CN=Alone"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	conf, err := Parse(v)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !conf.IsNetworkMap() {
		t.Fatalf("node without a network map entry hosts the network map")
	}
	if conf.BaseDirectory != base {
		t.Fatalf("base directory should default to %s, got %s", base, conf.BaseDirectory)
	}
}

func TestParseRequiresLegalName(t *testing.T) {
	v, err := Load(t.TempDir(), true, nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if _, err := Parse(v); err == nil {
		t.Fatalf("Parse should fail without a legal name")
	}
}

func TestBaseDirectory(t *testing.T) {
	driverDir := t.TempDir()

	dir, err := BaseDirectory(driverDir, "CN=Bank A-10002,O=Bank A,L=London,C=GB")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if dir != filepath.Join(driverDir, "BankA-10002") {
		t.Fatalf("unexpected base directory %s", dir)
	}

	escaped, err := BaseDirectory(driverDir, "CN=../../etc,O=Evil,C=GB")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !strings.HasPrefix(escaped, driverDir) {
		t.Fatalf("%s escapes %s", escaped, driverDir)
	}

	if _, err := BaseDirectory(driverDir, "CN= ,O=Blank"); err == nil {
		t.Fatalf("a blank common name should be rejected")
	}
}

func TestLoggerWritesErrorLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogsDir, ErrorLogFile)

	logger := Logger("info", path)
	logger.Out = os.Stderr
	logger.WithField("prefix", "test").Info("not in the error log")
	logger.WithField("prefix", "test").Error("in the error log")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !strings.Contains(string(data), "in the error log") {
		t.Fatalf("error entry missing from %s", path)
	}
	if strings.Contains(string(data), "not in the error log") {
		t.Fatalf("info entry should not reach %s", path)
	}
}

func TestNewTestConfigLogger(t *testing.T) {
	conf := NewTestConfig(t, logrus.DebugLevel)
	conf.MyLegalName = "CN=Bank B,O=Bank B,L=New York,C=US"
	conf.Logger().Debug("hello")
}
