// Package shell decides which interactive shell the terminal bridge launches.
package shell

import (
	"os"
	"os/exec"
	"runtime"
)

// WSLPath is where the Windows Subsystem for Linux launcher lives when installed.
const WSLPath = `C:\Windows\System32\wsl.exe`

const (
	wslProgram     = "wsl.exe"
	cmdProgram     = "cmd.exe"
	bashProgram    = "bash"
	posixShellPath = "/bin/sh"
)

// Program is an executable plus its arguments.
type Program struct {
	Name string
	Args []string
}

// Locator picks a Program for the host. The zero value is not usable; use Default.
type Locator struct {
	// GOOS is the platform to decide for.
	GOOS string
	// Stat probes fixed paths such as WSLPath.
	Stat func(name string) (os.FileInfo, error)
	// LookPath resolves a program name against PATH.
	LookPath func(file string) (string, error)
	// Override, when Name is set, is returned without probing.
	Override Program
}

// Default returns a Locator for the running host.
func Default() Locator {
	return Locator{
		GOOS:     runtime.GOOS,
		Stat:     os.Stat,
		LookPath: exec.LookPath,
	}
}

// WithOverride returns a copy of l that always selects p when p.Name is set.
func (l Locator) WithOverride(p Program) Locator {
	l.Override = p
	return l
}

// Locate returns the program to launch. It never fails: the platform default
// is the last resort and is returned even if it turns out not to be installed.
func (l Locator) Locate() Program {
	if l.Override.Name != "" {
		return Program{Name: l.Override.Name, Args: append([]string(nil), l.Override.Args...)}
	}

	if l.GOOS == "windows" {
		if l.exists(WSLPath) {
			return Program{Name: wslProgram}
		}
		return Program{Name: cmdProgram}
	}

	if l.LookPath != nil {
		if _, err := l.LookPath(bashProgram); err != nil && l.exists(posixShellPath) {
			return Program{Name: posixShellPath}
		}
	}
	return Program{Name: bashProgram}
}

func (l Locator) exists(path string) bool {
	if l.Stat == nil {
		return false
	}
	info, err := l.Stat(path)
	return err == nil && !info.IsDir()
}
