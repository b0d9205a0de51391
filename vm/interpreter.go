package vm

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nel349/midnight-ledger-reader/collection"
	"github.com/nel349/midnight-ledger-reader/logging"
	"github.com/nel349/midnight-ledger-reader/metrics"
	"github.com/nel349/midnight-ledger-reader/state"
	"github.com/nel349/midnight-ledger-reader/types"
)

// Result is a program outcome: either a boolean (from member/popeq) or a
// narrowed state value. Neutral marks the guard's substitute outcome.
type Result struct {
	Bool    bool
	IsBool  bool
	Neutral bool
	Value   state.Value
}

// NeutralResult is returned when the re-entrancy guard trips: boolean
// false, which downstream membership logic treats as "not present".
func NeutralResult() Result {
	return Result{IsBool: true, Neutral: true}
}

// Operand is a stack element: a state value, a ledger shape record, or a
// boolean produced by a member instruction.
type Operand struct {
	kind operandKind
	val  state.Value
	rec  *state.Record
	b    bool
}

type operandKind uint8

const (
	opValue operandKind = iota
	opRecord
	opBool
)

// ValueOperand wraps a state value.
func ValueOperand(v state.Value) Operand {
	return Operand{kind: opValue, val: v}
}

// RecordOperand wraps a ledger shape record.
func RecordOperand(r *state.Record) Operand {
	return Operand{kind: opRecord, rec: r}
}

// isStructural reports whether the operand is a structural placeholder
// rather than a scalar: shape records, and every value variant except
// Cell.
func (o Operand) isStructural() bool {
	switch o.kind {
	case opRecord:
		return true
	case opBool:
		return false
	default:
		return o.val.Tag() != state.TagCell
	}
}

// Interpreter executes query programs. An instance refuses re-entrant
// execution: a program whose member instruction re-enters the same
// interpreter (through the collection adapter) gets a neutral result
// instead of unbounded mutual recursion. Independent concurrent callers
// are serialized, never refused; the guard trips only when the running
// goroutine re-enters its own execution. Instance-local, so independent
// readers never interfere with each other.
type Interpreter struct {
	fields  []string
	adapter *collection.Adapter
	metrics metrics.Metrics
	log     *logging.Logger

	mu         sync.Mutex
	runningGID atomic.Int64
}

// New creates an interpreter. fields is the contract's declared ledger
// field ordering, used only to map numeric field indices to names.
func New(fields []string, adapter *collection.Adapter, m metrics.Metrics, log *logging.Logger) *Interpreter {
	if m == nil {
		m = metrics.NewNopMetrics()
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	order := make([]string, len(fields))
	copy(order, fields)
	return &Interpreter{
		fields:  order,
		adapter: adapter,
		metrics: m,
		log:     log.WithComponent("vm"),
	}
}

// Run executes a program against an initial stack containing root. The
// ledger state is always passed explicitly; the interpreter reads no
// ambient state.
func (in *Interpreter) Run(prog Program, root Operand) (Result, error) {
	gid := goroutineID()
	if in.runningGID.Load() == gid {
		// Re-entered by the executing goroutine: resolve locally with a
		// neutral result, logged but never propagated as an error.
		in.metrics.IncRecursionGuardTrips()
		in.log.Warn("re-entrant program execution refused",
			logging.Reason(types.ErrRecursionGuard.Error()))
		return NeutralResult(), nil
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	in.runningGID.Store(gid)
	defer in.runningGID.Store(0)

	stack := []Operand{root}
	outcome := Result{}
	haveOutcome := false

	for pc, instr := range prog {
		var err error
		switch instr.Op {
		case OpDup:
			stack, err = in.execDup(stack, instr.N)

		case OpIdx:
			stack, err = in.execIdx(stack, instr)

		case OpPush:
			stack = append(stack, ValueOperand(instr.Value))

		case OpMember:
			stack, err = in.execMember(stack)

		case OpPopEq:
			var res Result
			stack, res, err = in.execPopEq(stack)
			if err == nil {
				outcome = res
				haveOutcome = true
			}

		default:
			err = fmt.Errorf("%w: opcode %d", types.ErrBadProgram, instr.Op)
		}
		if err != nil {
			return Result{}, fmt.Errorf("pc %d (%s): %w", pc, instr.Op, err)
		}
	}

	if haveOutcome {
		return outcome, nil
	}
	// No popeq executed: the program's result is the top of stack.
	if len(stack) == 0 {
		return Result{}, fmt.Errorf("%w: empty stack at end of program", types.ErrBadProgram)
	}
	return operandResult(stack[len(stack)-1]), nil
}

func (in *Interpreter) execDup(stack []Operand, n int) ([]Operand, error) {
	idx := len(stack) - 1 - n
	if idx < 0 {
		return nil, fmt.Errorf("%w: dup %d underflows stack of %d", types.ErrBadProgram, n, len(stack))
	}
	return append(stack, stack[idx]), nil
}

// execIdx pops the top operand and narrows it step by step. An
// unresolvable step stops the narrowing and keeps the last successfully
// resolved operand rather than failing; downstream contract logic depends
// on this partial-path resolution, so it is a documented policy, flagged
// in the logs.
func (in *Interpreter) execIdx(stack []Operand, instr Instr) ([]Operand, error) {
	if len(stack) == 0 {
		return nil, fmt.Errorf("%w: idx on empty stack", types.ErrBadProgram)
	}
	cur := stack[len(stack)-1]
	stack = stack[:len(stack)-1]

	for i, step := range instr.Path {
		next, ok := in.resolveStep(cur, step, i == 0)
		if !ok {
			in.metrics.IncProgramDegrades()
			in.log.Debug("idx step unresolved, keeping last value",
				logging.Op("idx"),
				logging.Count(i),
				logging.Reason("permissive degrade"))
			break
		}
		cur = next
	}
	return append(stack, cur), nil
}

// resolveStep narrows one path step. Numeric field-index mapping applies
// only to the first path element, and only against the shape record;
// later numeric-looking elements are collection-navigation tokens.
func (in *Interpreter) resolveStep(cur Operand, step PathStep, first bool) (Operand, bool) {
	switch cur.kind {
	case opRecord:
		name := step.Name
		if step.IsIndex {
			if !first {
				return Operand{}, false
			}
			if step.Index < 0 || int(step.Index) >= len(in.fields) {
				return Operand{}, false
			}
			name = in.fields[step.Index]
		}
		v, ok := cur.rec.Get(name)
		if !ok {
			return Operand{}, false
		}
		return ValueOperand(v), true

	case opValue:
		return in.resolveValueStep(cur.val, step)

	default:
		return Operand{}, false
	}
}

func (in *Interpreter) resolveValueStep(v state.Value, step PathStep) (Operand, bool) {
	switch v.Tag() {
	case state.TagArray:
		elems, _ := v.AsArray()
		idx := step.Index
		if !step.IsIndex {
			n, err := strconv.ParseInt(step.Name, 10, 64)
			if err != nil {
				return Operand{}, false
			}
			idx = n
		}
		if idx < 0 || int(idx) >= len(elems) {
			return Operand{}, false
		}
		return ValueOperand(elems[int(idx)]), true

	case state.TagMap:
		raw := []byte(step.Name)
		if step.IsIndex {
			raw = []byte(strconv.FormatInt(step.Index, 10))
		}
		key, err := state.NormalizeKey(raw)
		if err != nil {
			return Operand{}, false
		}
		entry, ok := v.MapGet(key)
		if !ok {
			return Operand{}, false
		}
		return ValueOperand(entry), true

	case state.TagBoundedMerkleTree:
		raw := []byte(step.Name)
		if step.IsIndex {
			raw = []byte(strconv.FormatInt(step.Index, 10))
		}
		entry, found, err := in.adapter.Lookup(v, raw)
		if err != nil || !found {
			return Operand{}, false
		}
		return ValueOperand(entry), true

	default:
		return Operand{}, false
	}
}

// execMember pops a key (top) and a collection, unwraps the key to its
// raw byte string, and pushes the membership boolean.
func (in *Interpreter) execMember(stack []Operand) ([]Operand, error) {
	if len(stack) < 2 {
		return nil, fmt.Errorf("%w: member needs key and collection", types.ErrBadProgram)
	}
	keyOp := stack[len(stack)-1]
	collOp := stack[len(stack)-2]
	stack = stack[:len(stack)-2]

	rawKey, err := unwrapKey(keyOp)
	if err != nil {
		return nil, err
	}
	if collOp.kind != opValue {
		return nil, fmt.Errorf("%w: member target is not a collection value", types.ErrBadProgram)
	}

	ok, err := in.adapter.Member(collOp.val, rawKey)
	if err != nil {
		return nil, err
	}
	return append(stack, Operand{kind: opBool, b: ok}), nil
}

// execPopEq pops two operands. A boolean popped alongside a structural
// placeholder propagates as the outcome; otherwise the two operands are
// compared exactly.
func (in *Interpreter) execPopEq(stack []Operand) ([]Operand, Result, error) {
	if len(stack) < 2 {
		return nil, Result{}, fmt.Errorf("%w: popeq needs two operands", types.ErrBadProgram)
	}
	a := stack[len(stack)-1]
	b := stack[len(stack)-2]
	stack = stack[:len(stack)-2]

	switch {
	case a.kind == opBool && b.isStructural():
		return stack, Result{IsBool: true, Bool: a.b}, nil
	case b.kind == opBool && a.isStructural():
		return stack, Result{IsBool: true, Bool: b.b}, nil
	case a.kind == opBool && b.kind == opBool:
		return stack, Result{IsBool: true, Bool: a.b == b.b}, nil
	default:
		return stack, Result{IsBool: true, Bool: operandsEqual(a, b)}, nil
	}
}

// unwrapKey converts a key operand from its possibly-boxed encoded form
// to a raw byte string.
func unwrapKey(op Operand) ([]byte, error) {
	if op.kind != opValue {
		return nil, fmt.Errorf("%w: member key is not a value", types.ErrBadProgram)
	}
	switch op.val.Tag() {
	case state.TagCell:
		payload, _ := op.val.AsCell()
		return payload, nil
	case state.TagNull:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: member key has tag %s", types.ErrBadProgram, op.val.Tag())
	}
}

func operandsEqual(a, b Operand) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case opValue:
		return state.Equal(a.val, b.val)
	case opRecord:
		return state.RecordEqual(a.rec, b.rec)
	default:
		return a.b == b.b
	}
}

// goroutineID extracts the current goroutine's id from the runtime
// stack header ("goroutine N [...]"). Goroutine ids start at 1, so zero
// marks an idle interpreter.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		return -1
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return -1
	}
	return id
}

func operandResult(op Operand) Result {
	switch op.kind {
	case opBool:
		return Result{IsBool: true, Bool: op.b}
	case opRecord:
		// A record outcome has no value form; collapse to Null.
		return Result{Value: state.NewNull()}
	default:
		return Result{Value: op.val}
	}
}
