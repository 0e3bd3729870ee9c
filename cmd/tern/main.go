// Tern CLI - register allocation and heap trace tooling for the tern runtime
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/ternvm/tern/alloc"
	"github.com/ternvm/tern/snapshot"
	"github.com/ternvm/tern/store"
	"github.com/ternvm/tern/target"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	targetPath := flag.String("target", "", "Target description (target.toml); built-in default if empty")
	dbPath := flag.String("db", "", "Snapshot database; allocation results are persisted there")
	listSnaps := flag.Bool("list", false, "List stored allocation snapshots")
	showHash := flag.String("show", "", "Print the stored allocation snapshot with this hash")
	tracePath := flag.String("trace", "", "Replay a collector trace and print the final heap state")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tern [options] [sequence.lir]\n\n")
		fmt.Fprintf(os.Stderr, "Allocates registers for a LIR dump, or replays a heap collector trace.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tern fib.lir                       # Allocate with the built-in target\n")
		fmt.Fprintf(os.Stderr, "  tern -target amd64.toml fib.lir    # Allocate for a described target\n")
		fmt.Fprintf(os.Stderr, "  tern -db tern.db fib.lir           # Allocate and persist the snapshot\n")
		fmt.Fprintf(os.Stderr, "  tern -db tern.db -list             # List stored snapshots\n")
		fmt.Fprintf(os.Stderr, "  tern -db tern.db -show <hash>      # Print one stored snapshot\n")
		fmt.Fprintf(os.Stderr, "  tern -trace minor.trace            # Replay a collector trace\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	switch {
	case *listSnaps:
		runList(*dbPath)
	case *showHash != "":
		runShow(*dbPath, *showHash)
	case *tracePath != "":
		runTrace(*tracePath)
	default:
		if flag.NArg() != 1 {
			flag.Usage()
			os.Exit(2)
		}
		runAllocate(flag.Arg(0), *targetPath, *dbPath)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func openStore(dbPath string) *store.Store {
	if dbPath == "" {
		fail("no snapshot database given (use -db)")
	}
	st, err := store.Open(dbPath)
	if err != nil {
		fail("opening %s: %v", dbPath, err)
	}
	return st
}

func runAllocate(lirPath, targetPath, dbPath string) {
	t := target.Default()
	if targetPath != "" {
		var err error
		if t, err = target.Load(targetPath); err != nil {
			fail("%v", err)
		}
	}
	regs := t.RegisterSet()

	f, err := os.Open(lirPath)
	if err != nil {
		fail("%v", err)
	}
	defer f.Close()

	pool := alloc.NewOperandPool(len(regs))
	seq, err := parseLIR(f, pool)
	if err != nil {
		fail("parsing %s: %v", lirPath, err)
	}

	res, err := alloc.Allocate(seq, alloc.Config{Registers: regs, Pool: pool})
	if err != nil {
		fail("allocating %s: %v", seq.Name, err)
	}

	fmt.Printf("%s: %d intervals, %d spill slots\n", seq.Name, len(res.Assignments), res.SpillSlots)
	for _, a := range res.Assignments {
		fmt.Printf("  %-12s -> %-12s [%d, %d)\n", a.Operand, a.Location, a.From, a.To)
	}

	if dbPath != "" {
		st := openStore(dbPath)
		defer st.Close()
		hash, err := st.Save(seq, snapshot.FromResult(res))
		if err != nil {
			fail("saving snapshot: %v", err)
		}
		fmt.Printf("saved as %s\n", hash)
	}
}

func runList(dbPath string) {
	st := openStore(dbPath)
	defer st.Close()

	entries, err := st.List()
	if err != nil {
		fail("%v", err)
	}
	for _, e := range entries {
		fmt.Printf("%s  %s\n", e.Hash, e.Sequence)
	}
}

func runShow(dbPath, hash string) {
	st := openStore(dbPath)
	defer st.Close()

	snap, err := st.Load(hash)
	if err != nil {
		fail("%v", err)
	}
	fmt.Printf("%s: %d intervals, %d spill slots\n", snap.Sequence, len(snap.Intervals), snap.SpillSlots)
	for _, rec := range snap.Intervals {
		fmt.Printf("  %-12s -> %-12s [%d, %d)\n", rec.Operand, rec.Location, rec.From, rec.To)
	}
}

func runTrace(tracePath string) {
	f, err := os.Open(tracePath)
	if err != nil {
		fail("%v", err)
	}
	defer f.Close()

	scheme, err := replayTrace(f)
	if err != nil {
		fail("replaying %s: %v", tracePath, err)
	}

	heap := snapshot.FromScheme(scheme)
	fmt.Printf("phase %s, %d collections, %d references\n",
		heap.Phase, heap.Collections, len(heap.References))
	for _, ref := range heap.References {
		fmt.Printf("  %#x %-9s %s", ref.Origin, ref.Status, ref.State)
		if ref.ForwardedFrom != 0 {
			fmt.Printf(" from=%#x", ref.ForwardedFrom)
		}
		if ref.ForwardedTo != 0 {
			fmt.Printf(" to=%#x", ref.ForwardedTo)
		}
		fmt.Println()
	}
}
