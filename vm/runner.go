package vm

import (
	"fmt"

	"github.com/nel349/midnight-ledger-reader/collection"
	"github.com/nel349/midnight-ledger-reader/state"
	"github.com/nel349/midnight-ledger-reader/types"
)

// ProgramRunner adapts an Interpreter to the collection adapter's Runner
// interface. Carried programs are keyless templates: the runner injects
// the invocation key before executing.
type ProgramRunner struct {
	in *Interpreter
}

var _ collection.Runner = (*ProgramRunner)(nil)

// NewProgramRunner wraps an interpreter.
func NewProgramRunner(in *Interpreter) *ProgramRunner {
	return &ProgramRunner{in: in}
}

// RunMember decodes a member program, injects the key as a pushed cell
// immediately before the first member instruction, and executes it.
func (r *ProgramRunner) RunMember(program []byte, root state.Value, key state.Key) (bool, error) {
	r.in.metrics.IncProgramsRun("member")
	prog, err := DecodeProgram(program)
	if err != nil {
		return false, err
	}

	injected := make(Program, 0, len(prog)+1)
	done := false
	for _, instr := range prog {
		if !done && instr.Op == OpMember {
			injected = append(injected, Instr{Op: OpPush, Value: state.NewCell(key.Bytes())})
			done = true
		}
		injected = append(injected, instr)
	}
	if !done {
		return false, fmt.Errorf("%w: member program has no member instruction", types.ErrBadProgram)
	}

	res, err := r.in.Run(injected, ValueOperand(root))
	if err != nil {
		return false, err
	}
	if !res.IsBool {
		return false, fmt.Errorf("%w: member program yielded a non-boolean", types.ErrBadProgram)
	}
	return res.Bool, nil
}

// RunLookup decodes a lookup program, appends the key as a final path
// step of its last idx instruction, and executes it. A result that the
// permissive idx degrade left at the collection itself, or a Null result,
// reads as absent.
func (r *ProgramRunner) RunLookup(program []byte, root state.Value, key state.Key) (state.Value, bool, error) {
	r.in.metrics.IncProgramsRun("lookup")
	prog, err := DecodeProgram(program)
	if err != nil {
		return state.Value{}, false, err
	}

	keyStep := PathStep{Name: string(key.Bytes())}
	last := -1
	for i, instr := range prog {
		if instr.Op == OpIdx {
			last = i
		}
	}
	if last >= 0 {
		steps := make([]PathStep, 0, len(prog[last].Path)+1)
		steps = append(steps, prog[last].Path...)
		prog[last].Path = append(steps, keyStep)
	} else {
		prog = append(prog, Instr{Op: OpIdx, Path: []PathStep{keyStep}})
	}

	res, err := r.in.Run(prog, ValueOperand(root))
	if err != nil {
		return state.Value{}, false, err
	}
	if res.IsBool {
		// The guard's neutral outcome reads as absent; any other
		// boolean means a malformed lookup program.
		if res.Neutral {
			return state.Value{}, false, nil
		}
		return state.Value{}, false, fmt.Errorf("%w: lookup program yielded a boolean", types.ErrBadProgram)
	}
	if res.Value.IsNull() || state.Equal(res.Value, root) {
		return state.Value{}, false, nil
	}
	return res.Value, true, nil
}
