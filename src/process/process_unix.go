//go:build !windows

package process

import "syscall"

var terminateSignal = syscall.SIGTERM

// children get their own process group so that a ^C aimed at the driver is
// handled by the driver's teardown, not delivered to every node at once
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
