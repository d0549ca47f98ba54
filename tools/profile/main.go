// Command profile summarizes a pprof-format CPU or heap profile captured
// while exercising the allocator or scheduler under test (spec.md §2 A7),
// e.g. `go test ./mem/... -cpuprofile=alloc.prof && profile alloc.prof`.
// It is a thin host-side reader built on the same github.com/google/pprof
// dependency the teacher's go.mod already carries; this core has no
// production pprof endpoint of its own (the kernel doesn't run under the
// Go runtime), so the tool's only job is turning a captured profile into a
// ranked list of hot functions for whoever is chasing down allocator
// contention or scheduler-loop overhead in the hosted simulation.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/google/pprof/profile"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: profile <profile.pb.gz>")
		os.Exit(2)
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "profile: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	prof, err := profile.Parse(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "profile: parsing %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}

	valueIdx := 0
	for i, st := range prof.SampleType {
		if st.Type == "cpu" || st.Type == "samples" || st.Type == "alloc_space" {
			valueIdx = i
			break
		}
	}

	totals := map[string]int64{}
	for _, s := range prof.Sample {
		if len(s.Location) == 0 || len(s.Location[0].Line) == 0 {
			continue
		}
		fn := s.Location[0].Line[0].Function
		name := "?"
		if fn != nil {
			name = fn.Name
		}
		if valueIdx < len(s.Value) {
			totals[name] += s.Value[valueIdx]
		}
	}

	type row struct {
		name string
		val  int64
	}
	rows := make([]row, 0, len(totals))
	for name, v := range totals {
		rows = append(rows, row{name, v})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].val > rows[j].val })

	unit := "samples"
	if valueIdx < len(prof.SampleType) {
		unit = prof.SampleType[valueIdx].Type
	}
	for i, r := range rows {
		if i >= 20 {
			break
		}
		fmt.Printf("%10d %s  %s\n", r.val, unit, r.name)
	}
}
