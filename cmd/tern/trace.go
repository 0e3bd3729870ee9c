package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ternvm/tern/remote"
)

// replayTrace drives a GenScheme from a textual collector trace:
//
//	overflow <lo> <hi>          declare an overflow address range
//	live <addr> young|old       register a live object
//	begin minor|full            start a collection's analysis
//	scan-from <addr>            object found in the space under analysis
//	scan-to <addr>              copied object found in the target space
//	forward <from> <to>         forwarder header decoded
//	end                         finish analysis
//	reclaim                     drop dead references, close the cycle
//
// Addresses are hex or decimal. Blank lines and # comments are skipped.
// Returns the scheme in its final state.
func replayTrace(r io.Reader) (*remote.GenScheme, error) {
	type span struct{ lo, hi remote.Address }
	var overflow []span

	scheme := remote.NewGenScheme(func(a remote.Address) bool {
		for _, s := range overflow {
			if a >= s.lo && a < s.hi {
				return true
			}
		}
		return false
	})

	addr := func(tok string) (remote.Address, error) {
		n, err := strconv.ParseUint(tok, 0, 64)
		if err != nil {
			return remote.Zero, fmt.Errorf("bad address %q", tok)
		}
		return remote.Address(n), nil
	}

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)

		var err error
		switch fields[0] {
		case "overflow":
			if len(fields) != 3 {
				err = fmt.Errorf("overflow wants lo and hi")
				break
			}
			var lo, hi remote.Address
			if lo, err = addr(fields[1]); err != nil {
				break
			}
			if hi, err = addr(fields[2]); err != nil {
				break
			}
			overflow = append(overflow, span{lo, hi})
		case "live":
			if len(fields) != 3 || (fields[2] != "young" && fields[2] != "old") {
				err = fmt.Errorf("live wants an address and young|old")
				break
			}
			var a remote.Address
			if a, err = addr(fields[1]); err != nil {
				break
			}
			_, err = scheme.MakeLive(a, fields[2] == "young")
		case "begin":
			if len(fields) != 2 || (fields[1] != "minor" && fields[1] != "full") {
				err = fmt.Errorf("begin wants minor|full")
				break
			}
			err = scheme.BeginAnalyzing(fields[1] == "minor")
		case "scan-from", "scan-to":
			if len(fields) != 2 {
				err = fmt.Errorf("%s wants an address", fields[0])
				break
			}
			var a remote.Address
			if a, err = addr(fields[1]); err != nil {
				break
			}
			if fields[0] == "scan-from" {
				_, err = scheme.DiscoverFromOnly(a)
			} else {
				_, err = scheme.DiscoverSurvivor(a)
			}
		case "forward":
			if len(fields) != 3 {
				err = fmt.Errorf("forward wants from and to addresses")
				break
			}
			var from, to remote.Address
			if from, err = addr(fields[1]); err != nil {
				break
			}
			if to, err = addr(fields[2]); err != nil {
				break
			}
			_, err = scheme.RecordForwarding(from, to)
		case "end":
			err = scheme.EndAnalyzing()
		case "reclaim":
			_, err = scheme.Reclaim()
		default:
			err = fmt.Errorf("unknown event %q", fields[0])
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return scheme, nil
}
