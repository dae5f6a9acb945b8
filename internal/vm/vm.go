package vm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"pyvm/internal/errs"
	"pyvm/internal/ir"
	"pyvm/internal/runtime"
	"pyvm/internal/value"
)

var log = commonlog.GetLogger("pyvm.vm")

// DefaultMaxCallDepth bounds nested user-function calls.
const DefaultMaxCallDepth = 1000

// Options tunes a VM. The zero value uses the defaults.
type Options struct {
	MaxCallDepth int
	// Trace logs every executed instruction at debug level.
	Trace bool
}

// block is one active loop on a frame's block stack.
type block struct {
	start ir.Label
	end   ir.Label
}

// Frame represents one running code object.
type Frame struct {
	Code   *ir.CodeObject
	PC     int // index of the next instruction
	Base   int // operand stack height when the frame started
	Scope  *Scope
	blocks []block
}

// VM is a stack-based virtual machine for pyvm bytecode.
type VM struct {
	ID string

	env     *runtime.Env
	opts    Options
	globals *Scope

	stack  []value.Value
	frames []*Frame
}

// New creates a machine whose module scope is seeded with the builtins
// provided by env.
func New(env *runtime.Env, opts Options) *VM {
	if env == nil {
		env = runtime.DefaultEnv()
	}
	if opts.MaxCallDepth <= 0 {
		opts.MaxCallDepth = DefaultMaxCallDepth
	}
	vm := &VM{
		ID:      uuid.NewString(),
		env:     env,
		opts:    opts,
		globals: NewScope(nil),
	}
	for _, b := range runtime.Bindings(env) {
		vm.globals.Store(b.Name, b.Value)
	}
	return vm
}

// Evaluate runs a module code object to completion. The result is the value
// of a module-level return, or None when the code runs off its end.
//
// On failure the machine is left as it was when the failing instruction
// ran, so StackDepth, Lookup and PC describe the point of failure.
func (vm *VM) Evaluate(ctx context.Context, code *ir.CodeObject) (value.Value, error) {
	if err := ctx.Err(); err != nil {
		return value.Value{}, err
	}
	if err := ir.Validate(code); err != nil {
		return value.Value{}, err
	}

	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]

	log.Infof("vm %s: evaluating %s (%d instructions)", vm.ID, code.Name, code.Len())
	fr := vm.pushFrame(code, vm.globals)
	res, err := vm.run(fr)
	if err != nil {
		log.Infof("vm %s: %s failed: %v", vm.ID, code.Name, err)
		return value.Value{}, err
	}
	vm.popFrame()
	log.Infof("vm %s: %s finished", vm.ID, code.Name)
	return res, nil
}

// Invoke runs a user-defined function: the arguments are bound
// positionally in a fresh scope whose parent is the module scope. It
// implements value.Invoker.
func (vm *VM) Invoke(fn *value.Function, args []value.Value) (value.Value, error) {
	if len(vm.frames) >= vm.opts.MaxCallDepth {
		return value.Value{}, errs.New(errs.Recursion, "maximum recursion depth exceeded calling %s()", fn.Name)
	}
	if len(args) != len(fn.Params) {
		return value.Value{}, errs.Internalf("%s() invoked with %d arguments for %d parameters", fn.Name, len(args), len(fn.Params))
	}

	scope := NewScope(vm.globals)
	for i, p := range fn.Params {
		scope.Store(p, args[i])
	}
	fr := vm.pushFrame(fn.Code, scope)
	res, err := vm.run(fr)
	if err != nil {
		return value.Value{}, err
	}
	vm.popFrame()
	return res, nil
}

// StackDepth returns the number of values on the operand stack.
func (vm *VM) StackDepth() int {
	return len(vm.stack)
}

// Lookup resolves name in the innermost active scope, or the module scope
// when nothing is running.
func (vm *VM) Lookup(name string) (value.Value, bool) {
	if n := len(vm.frames); n > 0 {
		return vm.frames[n-1].Scope.Lookup(name)
	}
	return vm.globals.Lookup(name)
}

// PC returns the index of the instruction the innermost frame executes
// next, or -1 when nothing is running.
func (vm *VM) PC() int {
	if n := len(vm.frames); n > 0 {
		return vm.frames[n-1].PC
	}
	return -1
}

// Globals returns the module scope.
func (vm *VM) Globals() *Scope {
	return vm.globals
}

func (vm *VM) pushFrame(code *ir.CodeObject, scope *Scope) *Frame {
	fr := &Frame{Code: code, Base: len(vm.stack), Scope: scope}
	vm.frames = append(vm.frames, fr)
	return fr
}

// popFrame drops the innermost frame and anything it left on the stack,
// such as the iterator of a loop it returned from.
func (vm *VM) popFrame() {
	fr := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.stack = vm.stack[:fr.Base]
}

func (vm *VM) push(v value.Value) {
	vm.stack = append(vm.stack, v)
}

// pop and peek are only called after run has checked the instruction's
// stack contract.
func (vm *VM) pop() value.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek() value.Value {
	return vm.stack[len(vm.stack)-1]
}

// popN removes the top n values and returns them in push order.
func (vm *VM) popN(n int) []value.Value {
	start := len(vm.stack) - n
	out := make([]value.Value, n)
	copy(out, vm.stack[start:])
	vm.stack = vm.stack[:start]
	return out
}

// breakOut pops the innermost block and jumps to its end.
func (fr *Frame) breakOut(op ir.OpCode) error {
	if len(fr.blocks) == 0 {
		return errs.Internalf("%s@%d: %s with an empty block stack", fr.Code.Name, fr.PC-1, op)
	}
	b := fr.blocks[len(fr.blocks)-1]
	fr.blocks = fr.blocks[:len(fr.blocks)-1]
	fr.PC = int(b.end)
	return nil
}

// run executes fr until it returns or runs off the end of its code.
func (vm *VM) run(fr *Frame) (value.Value, error) {
	code := fr.Code.Code
	trace := vm.opts.Trace && log.AllowLevel(commonlog.Debug)

	for fr.PC < len(code) {
		pc := fr.PC
		in := code[pc]
		fr.PC++

		reads, _ := in.StackEffect()
		if have := len(vm.stack) - fr.Base; have < reads {
			return value.Value{}, errs.Internalf("%s@%d: stack underflow: %s needs %d values, frame has %d",
				fr.Code.Name, pc, in.Op, reads, have)
		}
		if trace {
			log.Debugf("vm %s: %s %s (stack %d, blocks %d)",
				vm.ID, fr.Code.Name, ir.DisassembleInstruction(pc, in), len(vm.stack)-fr.Base, len(fr.blocks))
		}

		switch in.Op {
		case ir.OpLoadName:
			v, ok := fr.Scope.Lookup(in.Name)
			if !ok {
				return value.Value{}, errs.New(errs.Name, "name '%s' is not defined", in.Name)
			}
			vm.push(v)

		case ir.OpStoreName:
			fr.Scope.Store(in.Name, vm.pop())

		case ir.OpDeleteName:
			if !fr.Scope.Delete(in.Name) {
				return value.Value{}, errs.New(errs.Name, "name '%s' is not defined", in.Name)
			}

		case ir.OpLoadConst:
			vm.push(value.Int(int32(in.Arg)))

		case ir.OpLoadStringConstant:
			vm.push(value.Str(in.Name))

		case ir.OpLoadNone:
			vm.push(value.None())

		case ir.OpPop:
			vm.pop()

		case ir.OpDupTop:
			vm.push(vm.peek())

		case ir.OpBuildList:
			vm.push(value.List(vm.popN(in.Arg)))

		case ir.OpBuildTuple:
			vm.push(value.Tuple(vm.popN(in.Arg)))

		case ir.OpBuildMap:
			slots := vm.popN(in.Arg)
			d := value.NewDict()
			for i := 0; i+1 < len(slots); i += 2 {
				if err := d.Set(slots[i], slots[i+1]); err != nil {
					return value.Value{}, err
				}
			}
			vm.push(value.DictValue(d))

		case ir.OpBinaryOperation:
			right := vm.pop()
			left := vm.pop()
			res, err := value.BinaryOp(in.BinOp, left, right)
			if err != nil {
				return value.Value{}, err
			}
			vm.push(res)

		case ir.OpPushBlock:
			fr.blocks = append(fr.blocks, block{start: in.Start, end: in.End})

		case ir.OpPopBlock:
			if len(fr.blocks) == 0 {
				return value.Value{}, errs.Internalf("%s@%d: %s with an empty block stack", fr.Code.Name, pc, in.Op)
			}
			fr.blocks = fr.blocks[:len(fr.blocks)-1]

		case ir.OpBreak:
			if err := fr.breakOut(in.Op); err != nil {
				return value.Value{}, err
			}

		case ir.OpContinue:
			if len(fr.blocks) == 0 {
				return value.Value{}, errs.Internalf("%s@%d: %s with an empty block stack", fr.Code.Name, pc, in.Op)
			}
			fr.PC = int(fr.blocks[len(fr.blocks)-1].start)

		case ir.OpPass:

		case ir.OpJump:
			fr.PC = int(in.Target)

		case ir.OpJumpIfFalse:
			if !value.Truthy(vm.pop()) {
				fr.PC = int(in.Target)
			}

		case ir.OpGetIter:
			it, err := value.Iter(vm.pop())
			if err != nil {
				return value.Value{}, err
			}
			vm.push(it)

		case ir.OpForIter:
			top := vm.peek()
			if top.Kind != value.KindIterator {
				return value.Value{}, errs.Internalf("%s@%d: %s on a %s", fr.Code.Name, pc, in.Op, top.TypeName())
			}
			if next, ok := top.Iter.Next(); ok {
				vm.push(next)
			} else if err := fr.breakOut(in.Op); err != nil {
				return value.Value{}, err
			}

		case ir.OpCallFunction:
			args := vm.popN(in.Arg)
			callee := vm.pop()
			c, err := value.AsCallable(callee)
			if err != nil {
				return value.Value{}, err
			}
			res, err := c.Call(vm, args)
			if err != nil {
				return value.Value{}, err
			}
			vm.push(res)

		case ir.OpMakeFunction:
			vm.push(value.NewFunction(in.Func))

		case ir.OpReturnValue:
			return vm.pop(), nil

		case ir.OpAssertionFailed:
			msg := vm.pop()
			if msg.IsNone() {
				return value.Value{}, errs.New(errs.Assertion, "assertion failed")
			}
			s, err := value.ToStr(msg)
			if err != nil {
				return value.Value{}, err
			}
			return value.Value{}, errs.New(errs.Assertion, "%s", s)

		default:
			return value.Value{}, errs.Internalf("%s@%d: unknown opcode %d", fr.Code.Name, pc, byte(in.Op))
		}
	}
	return value.None(), nil
}

// Describe formats err for a person running a script: user errors as-is,
// internal errors marked as a defect of the machine itself.
func Describe(err error) string {
	var e *errs.Error
	if errors.As(err, &e) && e.Kind == errs.Internal {
		return fmt.Sprintf("internal error (this is a bug in pyvm): %s", e.Msg)
	}
	return err.Error()
}
