// Copyright 2026 The Procvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build !windows

package procvisor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

var terminateSignal os.Signal = unix.SIGTERM

// setProcessGroup places the child in a new process group whose id is
// its pid, so the whole group can be signalled at once.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalGroup(pid int, proc *os.Process, sig os.Signal) error {
	if s, ok := sig.(syscall.Signal); ok && pid > 0 {
		return unix.Kill(-pid, s)
	}
	return proc.Signal(sig)
}

func isNoSuchProcess(e error) bool {
	return errors.Is(e, unix.ESRCH)
}

// exitCode follows the shell convention of 128+N for a process
// terminated by signal N.
func exitCode(ps *os.ProcessState) int {
	if ps == nil {
		return ExitCodeSpawnFailed
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ps.ExitCode()
}
