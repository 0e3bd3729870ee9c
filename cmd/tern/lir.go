package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ternvm/tern/alloc"
)

// parseLIR reads the textual LIR dump format:
//
//	seq <name>
//	params <operand>...
//	loop <header-index> <end-index> <operand>...
//	<op-name> [def <operand>...] [use <operand>...] [temp <operand>...] [call]
//
// Operands are written v<N> or r<N>, optionally with a kind suffix like
// v0:object. Blank lines and lines starting with # are skipped. Loop indices
// refer to instruction positions, counted from zero in file order.
func parseLIR(r io.Reader, pool *alloc.OperandPool) (*alloc.Sequence, error) {
	p := &lirParser{pool: pool, seq: &alloc.Sequence{Name: "unnamed"}}

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := p.line(line); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	p.seq.Number()
	for _, l := range p.loops {
		if l.header >= len(p.seq.Instructions) || l.end >= len(p.seq.Instructions) || l.header > l.end {
			return nil, fmt.Errorf("loop %d..%d out of range", l.header, l.end)
		}
		p.seq.Loops = append(p.seq.Loops, alloc.Loop{
			HeaderID:  p.seq.Instructions[l.header].ID(),
			EndID:     p.seq.Instructions[l.end].ID(),
			LiveAtEnd: l.live,
		})
	}
	return p.seq, nil
}

type pendingLoop struct {
	header, end int
	live        []alloc.Value
}

// lirVar tracks one textual variable number. seen flips at the first real
// mention, which fixes the variable's kind.
type lirVar struct {
	val  alloc.Value
	seen bool
}

type lirParser struct {
	pool  *alloc.OperandPool
	seq   *alloc.Sequence
	vars  []lirVar
	loops []pendingLoop
}

func (p *lirParser) line(line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "seq":
		if len(fields) != 2 {
			return fmt.Errorf("seq wants exactly one name")
		}
		p.seq.Name = fields[1]
		return nil
	case "params":
		for _, tok := range fields[1:] {
			v, err := p.operand(tok)
			if err != nil {
				return err
			}
			p.seq.Params = append(p.seq.Params, v)
		}
		return nil
	case "loop":
		if len(fields) < 3 {
			return fmt.Errorf("loop wants header and end indices")
		}
		header, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("bad loop header %q", fields[1])
		}
		end, err := strconv.Atoi(fields[2])
		if err != nil {
			return fmt.Errorf("bad loop end %q", fields[2])
		}
		l := pendingLoop{header: header, end: end}
		for _, tok := range fields[3:] {
			v, err := p.operand(tok)
			if err != nil {
				return err
			}
			l.live = append(l.live, v)
		}
		p.loops = append(p.loops, l)
		return nil
	default:
		return p.instruction(fields)
	}
}

func (p *lirParser) instruction(fields []string) error {
	in := &alloc.Instruction{Name: fields[0]}
	var section *[]alloc.Value
	for _, tok := range fields[1:] {
		switch tok {
		case "def":
			section = &in.Defs
		case "use":
			section = &in.Uses
		case "temp":
			section = &in.Temps
		case "call":
			in.IsCall = true
			section = nil
		default:
			if section == nil {
				return fmt.Errorf("operand %q outside def/use/temp section", tok)
			}
			v, err := p.operand(tok)
			if err != nil {
				return err
			}
			*section = append(*section, v)
		}
	}
	p.seq.Append(in)
	return nil
}

// operand parses v<N>[:kind] and r<N>[:kind] tokens. Variables keep their
// textual numbering: v3 is the pool's variable 3 regardless of first-use
// order. A variable's kind is fixed by its first mention; later kind
// annotations must agree with it.
func (p *lirParser) operand(tok string) (alloc.Value, error) {
	body := tok
	kind := alloc.KindInt
	explicit := false
	if i := strings.IndexByte(tok, ':'); i >= 0 {
		body = tok[:i]
		kind = alloc.ParseKind(tok[i+1:])
		explicit = true
		if kind == alloc.KindIllegal {
			return alloc.IllegalValue, fmt.Errorf("unknown kind in %q", tok)
		}
	}
	if len(body) < 2 || (body[0] != 'v' && body[0] != 'r') {
		return alloc.IllegalValue, fmt.Errorf("bad operand %q", tok)
	}
	num, err := strconv.Atoi(body[1:])
	if err != nil || num < 0 {
		return alloc.IllegalValue, fmt.Errorf("bad operand %q", tok)
	}

	if body[0] == 'r' {
		if num >= p.pool.VRegBase() {
			return alloc.IllegalValue, fmt.Errorf("register %q outside the target register file", tok)
		}
		return alloc.NewRegisterValue(num, kind), nil
	}

	// gap numbers materialize unseen so that numbering stays dense; their
	// kind pins when they are first mentioned themselves
	for len(p.vars) <= num {
		p.vars = append(p.vars, lirVar{val: p.pool.NewVariable(alloc.KindInt)})
	}
	v := &p.vars[num]
	if !v.seen {
		v.val.Kind = kind
		v.seen = true
	} else if explicit && v.val.Kind != kind {
		return alloc.IllegalValue, fmt.Errorf("operand %q: v%d already has kind %s", tok, num, v.val.Kind)
	}
	return v.val, nil
}
