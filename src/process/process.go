// Package process starts and supervises the child processes spawned by the
// driver.
package process

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/sirupsen/logrus"
)

// Environment variables carrying runtime parameters to a child process.
const (
	EnvName       = "LEDGER_NAME"
	EnvDebugPort  = "LEDGER_DEBUG_PORT"
	EnvPluginPath = "LEDGER_PLUGIN_PATH"
	EnvPropPrefix = "LEDGER_PROP_"
	EnvTempDir    = "TMPDIR"
)

// Process is a running, or finished, child process.
type Process interface {
	Pid() int
	// Alive reports whether the process has not exited yet.
	Alive() bool
	// ExitCode is the exit status, or -1 while the process is alive.
	ExitCode() int
	// Exited is closed when the process exits.
	Exited() <-chan struct{}
	// Terminate asks the process to exit gracefully.
	Terminate() error
	// Kill forcibly ends the process.
	Kill() error
	// Wait blocks until the process exits.
	Wait() error
}

// Spec describes a process to launch.
type Spec struct {
	// Path of the executable.
	Path string

	// Args passed on the command line.
	Args []string

	// Name identifies the process to itself and in logs.
	Name string

	// DebugPort, when non zero, asks the child to expose its inspection
	// endpoint on that port.
	DebugPort int

	// Properties are extra runtime parameters, exported as LEDGER_PROP_<KEY>.
	Properties map[string]string

	// PluginDirectories are appended, in order, to the plugin search path
	// inherited from this process.
	PluginDirectories []string

	// ErrorLogPath receives the child's stderr. Parent directories are
	// created.
	ErrorLogPath string

	// OutputLogPath receives the child's stdout. Empty discards it.
	OutputLogPath string

	// WorkingDirectory of the child.
	WorkingDirectory string
}

// Environment renders the runtime parameters of s on top of base.
func (s Spec) Environment(base []string) []string {
	env := append([]string{}, base...)

	if s.Name != "" {
		env = append(env, EnvName+"="+s.Name)
	}
	if s.DebugPort != 0 {
		env = append(env, EnvDebugPort+"="+strconv.Itoa(s.DebugPort))
	}
	if len(s.PluginDirectories) > 0 {
		path := s.PluginDirectories
		if inherited := os.Getenv(EnvPluginPath); inherited != "" {
			path = append([]string{inherited}, path...)
		}
		env = append(env, EnvPluginPath+"="+strings.Join(path, string(os.PathListSeparator)))
	}

	// inherit the temp directory of the parent
	env = append(env, EnvTempDir+"="+os.TempDir())

	keys := make([]string, 0, len(s.Properties))
	for k := range s.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, PropertyEnv(k)+"="+s.Properties[k])
	}

	return env
}

// PropertyEnv is the environment variable name carrying property key.
func PropertyEnv(key string) string {
	r := strings.NewReplacer(".", "_", "-", "_")
	return EnvPropPrefix + strings.ToUpper(r.Replace(key))
}

// CommandLine renders the command of s the way a shell would accept it.
func (s Spec) CommandLine() string {
	return shellquote.Join(append([]string{s.Path}, s.Args...)...)
}

// OSProcess is a Process backed by an operating system process.
type OSProcess struct {
	cmd    *exec.Cmd
	exited chan struct{}

	mu      sync.Mutex
	waitErr error
	files   []io.Closer
}

// Start launches the process described by spec. It returns once the process
// is running; readiness is the caller's business.
func Start(spec Spec, logger *logrus.Entry) (*OSProcess, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.WorkingDirectory
	cmd.Env = spec.Environment(os.Environ())
	cmd.SysProcAttr = sysProcAttr()

	p := &OSProcess{
		cmd:    cmd,
		exited: make(chan struct{}),
	}

	if spec.ErrorLogPath != "" {
		f, err := openLog(spec.ErrorLogPath)
		if err != nil {
			return nil, err
		}
		cmd.Stderr = f
		p.files = append(p.files, f)
	}

	if spec.OutputLogPath != "" {
		f, err := openLog(spec.OutputLogPath)
		if err != nil {
			p.closeFiles()
			return nil, err
		}
		cmd.Stdout = f
		p.files = append(p.files, f)
	}

	logger.WithFields(logrus.Fields{
		"command":    spec.CommandLine(),
		"dir":        spec.WorkingDirectory,
		"debug_port": spec.DebugPort,
	}).Info("Starting process")

	if err := cmd.Start(); err != nil {
		p.closeFiles()
		return nil, fmt.Errorf("starting %s: %w", spec.Path, err)
	}

	go p.watch()

	return p, nil
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

func (p *OSProcess) watch() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.waitErr = err
	p.mu.Unlock()

	p.closeFiles()
	close(p.exited)
}

func (p *OSProcess) closeFiles() {
	for _, f := range p.files {
		f.Close()
	}
	p.files = nil
}

// Pid implements Process.
func (p *OSProcess) Pid() int {
	return p.cmd.Process.Pid
}

// Alive implements Process.
func (p *OSProcess) Alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// ExitCode implements Process.
func (p *OSProcess) ExitCode() int {
	if p.Alive() {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// Exited implements Process.
func (p *OSProcess) Exited() <-chan struct{} {
	return p.exited
}

// Terminate implements Process.
func (p *OSProcess) Terminate() error {
	if !p.Alive() {
		return nil
	}
	return p.cmd.Process.Signal(terminateSignal)
}

// Kill implements Process.
func (p *OSProcess) Kill() error {
	if !p.Alive() {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Wait implements Process.
func (p *OSProcess) Wait() error {
	<-p.exited

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.waitErr
}
