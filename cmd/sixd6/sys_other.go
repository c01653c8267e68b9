//go:build !linux

package main

import "os"

func stderrIsTTY() bool {
	st, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (st.Mode() & os.ModeCharDevice) != 0
}

func dropPrivileges() error { return nil }
