package process

import "sync"

// Stub is an in-memory Process used where no real child exists, chiefly in
// tests. It is alive until Exit, Terminate or Kill is called.
type Stub struct {
	mu         sync.Mutex
	pid        int
	exitCode   int
	exited     chan struct{}
	terminated int
	killed     int

	// IgnoreTerminate makes Terminate a no-op, simulating a child that does
	// not react to a graceful stop request.
	IgnoreTerminate bool
}

// NewStub returns a live Stub with the given pid.
func NewStub(pid int) *Stub {
	return &Stub{pid: pid, exitCode: -1, exited: make(chan struct{})}
}

// Exit marks the Stub as exited with code.
func (s *Stub) Exit(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.exited:
		return
	default:
	}
	s.exitCode = code
	close(s.exited)
}

// Pid implements Process.
func (s *Stub) Pid() int { return s.pid }

// Alive implements Process.
func (s *Stub) Alive() bool {
	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

// ExitCode implements Process.
func (s *Stub) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.exitCode
}

// Exited implements Process.
func (s *Stub) Exited() <-chan struct{} { return s.exited }

// Terminate implements Process.
func (s *Stub) Terminate() error {
	s.mu.Lock()
	s.terminated++
	ignore := s.IgnoreTerminate
	s.mu.Unlock()

	if !ignore {
		s.Exit(143)
	}
	return nil
}

// Kill implements Process.
func (s *Stub) Kill() error {
	s.mu.Lock()
	s.killed++
	s.mu.Unlock()

	s.Exit(137)
	return nil
}

// Wait implements Process.
func (s *Stub) Wait() error {
	<-s.exited
	return nil
}

// Signals returns how many times Terminate and Kill were called.
func (s *Stub) Signals() (terminated, killed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.terminated, s.killed
}
