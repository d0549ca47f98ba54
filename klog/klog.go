// Package klog is the kernel's leveled diagnostic logger. Every subsystem
// prints through here instead of ad hoc fmt.Printf so fatal/warn/info/debug
// output can be filtered consistently.
package klog

import (
	"fmt"

	"rvcore/caller"
)

// Level selects which messages Printf-style calls actually emit.
type Level int

const (
	LevelFatal Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// Current is the active log level; Debugf is silent unless raised.
var Current = LevelInfo

// Fatalf prints a diagnostic and panics. Every fail-stop path in the kernel
// (configuration faults, programming faults) goes through here so a single
// grep finds every place the kernel gives up.
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("panic: %s\n\t<- %s\n", msg, caller.Dump(1))
	panic(msg)
}

// Assert calls Fatalf with msg if cond is false. It names the invariant
// being defended, not the reason it should hold (spec.md §7: "assertions
// carry the invariant they're defending, not a justification").
func Assert(cond bool, msg string) {
	if !cond {
		Fatalf("assertion failed: %s", msg)
	}
}

// Warnf prints a warning unless Current is lowered to LevelFatal.
func Warnf(format string, args ...interface{}) {
	if Current >= LevelWarn {
		fmt.Printf("warn: "+format+"\n", args...)
	}
}

// Infof prints a message at the informational level.
func Infof(format string, args ...interface{}) {
	if Current >= LevelInfo {
		fmt.Printf(format+"\n", args...)
	}
}

// Debugf prints a message only when Current is raised to LevelDebug.
func Debugf(format string, args ...interface{}) {
	if Current >= LevelDebug {
		fmt.Printf("debug: "+format+"\n", args...)
	}
}
