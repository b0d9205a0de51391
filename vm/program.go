// Package vm implements the query interpreter: a straight-line
// instruction set executed over a single operand stack to resolve field
// paths and collection membership against a ledger state tree.
//
// Programs are supplied by the runtime backend when a collection method
// is invoked on a backend-native collection object. When the backend
// cannot execute them itself, the interpreter here does.
package vm

import (
	"encoding/json"
	"fmt"

	"github.com/nel349/midnight-ledger-reader/state"
	"github.com/nel349/midnight-ledger-reader/types"
)

// Op is an instruction opcode. The set is fixed and closed; there are no
// branching or looping instructions, so every program is straight-line.
type Op uint8

// Instruction opcodes.
const (
	// OpDup duplicates the stack element n positions from the top.
	OpDup Op = iota

	// OpIdx pops the top value and narrows it through a field path.
	OpIdx

	// OpPush pushes a literal value.
	OpPush

	// OpPopEq pops two values and compares them; the comparison becomes
	// the program's outcome.
	OpPopEq

	// OpMember pops a key and a collection and pushes the boolean
	// membership result.
	OpMember
)

// String returns the opcode mnemonic.
func (op Op) String() string {
	switch op {
	case OpDup:
		return "dup"
	case OpIdx:
		return "idx"
	case OpPush:
		return "push"
	case OpPopEq:
		return "popeq"
	case OpMember:
		return "member"
	default:
		return "unknown"
	}
}

// PathStep is one step of an idx path: either a field name / string
// value, or a numeric index.
type PathStep struct {
	Name    string
	Index   int64
	IsIndex bool
}

// Instr is one decoded instruction.
type Instr struct {
	Op Op

	// N is the dup depth.
	N int

	// Path, Cached and PushPath belong to idx.
	Path     []PathStep
	Cached   bool
	PushPath bool

	// Value is the push literal.
	Value state.Value

	// Expected is the popeq wire payload. The native runtime uses it as
	// a result cache; the interpreter's comparison works on the two
	// popped operands, so it is carried for wire fidelity only.
	Expected *state.Value
}

// Program is an ordered instruction sequence.
type Program []Instr

// wireInstr is the JSON form of an instruction: either the bare string
// "member", or an object with exactly one of the dup/idx/push/popeq keys.
type wireInstr struct {
	Dup   *int           `json:"dup,omitempty"`
	Idx   *wireIdx       `json:"idx,omitempty"`
	Push  *state.Encoded `json:"push,omitempty"`
	PopEq *wirePopEq     `json:"popeq,omitempty"`
}

type wireIdx struct {
	Path     []json.RawMessage `json:"path"`
	Cached   bool              `json:"cached"`
	PushPath bool              `json:"pushPath"`
}

type wirePopEq struct {
	Expected *state.Encoded `json:"expected,omitempty"`
}

// DecodeProgram decodes the JSON wire form of a query program.
func DecodeProgram(data []byte) (Program, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBadProgram, err)
	}

	prog := make(Program, 0, len(raw))
	for i, item := range raw {
		instr, err := decodeInstr(item)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		prog = append(prog, instr)
	}
	return prog, nil
}

func decodeInstr(item json.RawMessage) (Instr, error) {
	// Bare string opcodes.
	var name string
	if err := json.Unmarshal(item, &name); err == nil {
		if name == "member" {
			return Instr{Op: OpMember}, nil
		}
		return Instr{}, fmt.Errorf("%w: opcode %q", types.ErrBadProgram, name)
	}

	var w wireInstr
	if err := json.Unmarshal(item, &w); err != nil {
		return Instr{}, fmt.Errorf("%w: %v", types.ErrBadProgram, err)
	}

	switch {
	case w.Dup != nil:
		if *w.Dup < 0 {
			return Instr{}, fmt.Errorf("%w: negative dup depth", types.ErrBadProgram)
		}
		return Instr{Op: OpDup, N: *w.Dup}, nil

	case w.Idx != nil:
		path, err := decodePath(w.Idx.Path)
		if err != nil {
			return Instr{}, err
		}
		return Instr{
			Op:       OpIdx,
			Path:     path,
			Cached:   w.Idx.Cached,
			PushPath: w.Idx.PushPath,
		}, nil

	case w.Push != nil:
		v, err := state.Decode(*w.Push)
		if err != nil {
			return Instr{}, fmt.Errorf("%w: push literal: %v", types.ErrBadProgram, err)
		}
		return Instr{Op: OpPush, Value: v}, nil

	case w.PopEq != nil:
		instr := Instr{Op: OpPopEq}
		if w.PopEq.Expected != nil {
			v, err := state.Decode(*w.PopEq.Expected)
			if err != nil {
				return Instr{}, fmt.Errorf("%w: popeq expected: %v", types.ErrBadProgram, err)
			}
			instr.Expected = &v
		}
		return instr, nil

	default:
		return Instr{}, fmt.Errorf("%w: empty instruction", types.ErrBadProgram)
	}
}

// decodePath parses path elements: JSON strings are field names or
// string values, JSON numbers are indices.
func decodePath(raw []json.RawMessage) ([]PathStep, error) {
	steps := make([]PathStep, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			steps = append(steps, PathStep{Name: s})
			continue
		}
		var n int64
		if err := json.Unmarshal(item, &n); err == nil {
			steps = append(steps, PathStep{Index: n, IsIndex: true})
			continue
		}
		return nil, fmt.Errorf("%w: bad path element %s", types.ErrBadProgram, item)
	}
	return steps, nil
}
