//go:build windows

package main

import "os"

// notifyControl is a no-op: Windows has no user signals.
func notifyControl(chan<- os.Signal) {}

func controlAction(os.Signal) controlKind { return actionNone }
