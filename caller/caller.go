// Package caller tags fatal/assert call sites with their call stack, so a
// kernel panic identifies where the invariant was violated rather than just
// where it was detected. Grounded on biscuit's caller.go (Callerdump),
// trimmed to the stack-formatting half of that file — the
// Distinct_caller_t deduplication path exists there to throttle repeated
// warnings across thousands of syscalls in a running OS; this core's fatal
// path never returns to log twice, so there is nothing for it to dedupe.
package caller

import (
	"fmt"
	"runtime"
)

// Dump renders the call stack starting skip frames above its own caller,
// one call site per line, innermost first.
func Dump(skip int) string {
	s := ""
	for i := skip + 1; ; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if s == "" {
			s = fmt.Sprintf("%s:%d", file, line)
		} else {
			s += fmt.Sprintf("\n\t<- %s:%d", file, line)
		}
	}
	return s
}
