package version

// Flag marks development builds. It must be empty on release branches, which
// TestFlagEmpty enforces.
const Flag = ""

var (
	// Version is the full version string of ledgerd and the driver.
	Version = "0.1.0"

	// GitCommit is set with --ldflags "-X github.com/mosaicnetworks/ledgerdriver/src/version.GitCommit=$(git rev-parse HEAD)"
	GitCommit string
)

func init() {
	if Flag != "" {
		Version += "-" + Flag
	}

	if len(GitCommit) >= 8 {
		Version += "-" + GitCommit[:8]
	}
}
