//go:build windows

package process

import (
	"os"
	"syscall"
)

var terminateSignal = os.Kill

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}
