//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// notifyControl relays SIGUSR1 (pause) and SIGUSR2 (resume) to ch.
func notifyControl(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2)
}

func controlAction(s os.Signal) controlKind {
	switch s {
	case syscall.SIGUSR1:
		return actionPause
	case syscall.SIGUSR2:
		return actionResume
	default:
		return actionNone
	}
}
