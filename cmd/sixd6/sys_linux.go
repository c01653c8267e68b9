//go:build linux

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

func stderrIsTTY() bool {
	_, err := unix.IoctlGetTermios(int(os.Stderr.Fd()), unix.TCGETS)
	return err == nil
}

// dropPrivileges gives up a setuid root identity once the input device is
// open.
func dropPrivileges() error {
	if uid := unix.Getuid(); unix.Geteuid() != uid {
		return unix.Setuid(uid)
	}
	return nil
}
