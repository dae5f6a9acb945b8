package ir

import "fmt"

// OpCode is an opcode for pyvm bytecode. The set is closed: the VM has a
// handler for every value below and treats anything else as a defect.
type OpCode byte

const (
	OpInvalid OpCode = iota

	// Names
	OpLoadName   // Name; push scope[Name]
	OpStoreName  // Name; pop value, bind it in the innermost scope
	OpDeleteName // Name; unbind from the innermost scope

	// Constants
	OpLoadConst          // Arg = int32 value
	OpLoadStringConstant // Name = string value
	OpLoadNone           // push the no-value sentinel

	// Stack hygiene
	OpPop
	OpDupTop

	// Aggregates
	OpBuildList  // Arg = number of elements
	OpBuildTuple // Arg = number of elements
	OpBuildMap   // Arg = number of slots, key/value alternating (always even)

	// Arithmetic / bitwise
	OpBinaryOperation // BinOp; pop right, pop left, push left op right

	// Loop control
	OpPushBlock // Start, End
	OpPopBlock
	OpBreak
	OpContinue
	OpPass

	// Jumps
	OpJump        // Target = absolute index
	OpJumpIfFalse // Target = absolute index, pop cond

	// Iteration
	OpGetIter // pop iterable, push iterator
	OpForIter // peek iterator; push next value or break out of the block

	// Calls / returns
	OpCallFunction // Arg = argc; pop args, pop callee, push result
	OpMakeFunction // Func; push a function value
	OpReturnValue  // pop result, leave the current code object

	// Assertions
	OpAssertionFailed // pop message (None when absent), fail evaluation

	numOpCodes
)

// OpInfo describes an opcode's name and stack contract.
//
// In is the number of slots the instruction takes from the top of the
// operand stack and Out the number it leaves in their place, so a peek
// counts on both sides. -1 means the count comes from the operand (see
// Instruction.StackEffect). ForIter's Out is for the non-exhausted path.
type OpInfo struct {
	Name string
	In   int
	Out  int
}

var opTable = [numOpCodes]OpInfo{
	OpInvalid:            {"INVALID", 0, 0},
	OpLoadName:           {"LOAD_NAME", 0, 1},
	OpStoreName:          {"STORE_NAME", 1, 0},
	OpDeleteName:         {"DELETE_NAME", 0, 0},
	OpLoadConst:          {"LOAD_CONST", 0, 1},
	OpLoadStringConstant: {"LOAD_STRING_CONSTANT", 0, 1},
	OpLoadNone:           {"LOAD_NONE", 0, 1},
	OpPop:                {"POP_TOP", 1, 0},
	OpDupTop:             {"DUP_TOP", 1, 2},
	OpBuildList:          {"BUILD_LIST", -1, 1},
	OpBuildTuple:         {"BUILD_TUPLE", -1, 1},
	OpBuildMap:           {"BUILD_MAP", -1, 1},
	OpBinaryOperation:    {"BINARY_OPERATION", 2, 1},
	OpPushBlock:          {"PUSH_BLOCK", 0, 0},
	OpPopBlock:           {"POP_BLOCK", 0, 0},
	OpBreak:              {"BREAK", 0, 0},
	OpContinue:           {"CONTINUE", 0, 0},
	OpPass:               {"PASS", 0, 0},
	OpJump:               {"JUMP", 0, 0},
	OpJumpIfFalse:        {"JUMP_IF_FALSE", 1, 0},
	OpGetIter:            {"GET_ITER", 1, 1},
	OpForIter:            {"FOR_ITER", 1, 2},
	OpCallFunction:       {"CALL_FUNCTION", -1, 1},
	OpMakeFunction:       {"MAKE_FUNCTION", 0, 1},
	OpReturnValue:        {"RETURN_VALUE", 1, 0},
	OpAssertionFailed:    {"ASSERTION_FAILED", 1, 0},
}

// Info returns the opcode's metadata. Unknown opcodes get a synthetic name.
func (op OpCode) Info() OpInfo {
	if op > OpInvalid && op < numOpCodes {
		return opTable[op]
	}
	return OpInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Valid reports whether op belongs to the instruction set.
func (op OpCode) Valid() bool {
	return op > OpInvalid && op < numOpCodes
}

func (op OpCode) String() string {
	return op.Info().Name
}

// BinaryOperator selects the operation performed by OpBinaryOperation.
type BinaryOperator byte

const (
	BinaryInvalid BinaryOperator = iota
	Power
	Multiply
	MatrixMultiply
	Divide
	FloorDivide
	Modulo
	Add
	Subtract
	Lshift
	Rshift
	And
	Xor
	Or
)

// BinaryOperators lists every valid operator.
var BinaryOperators = []BinaryOperator{
	Power, Multiply, MatrixMultiply, Divide, FloorDivide, Modulo,
	Add, Subtract, Lshift, Rshift, And, Xor, Or,
}

func (b BinaryOperator) String() string {
	switch b {
	case Power:
		return "**"
	case Multiply:
		return "*"
	case MatrixMultiply:
		return "@"
	case Divide:
		return "/"
	case FloorDivide:
		return "//"
	case Modulo:
		return "%"
	case Add:
		return "+"
	case Subtract:
		return "-"
	case Lshift:
		return "<<"
	case Rshift:
		return ">>"
	case And:
		return "&"
	case Xor:
		return "^"
	case Or:
		return "|"
	default:
		return fmt.Sprintf("BinaryOperator(%d)", byte(b))
	}
}

// Label is an absolute instruction index. len(Code) is a valid label and
// means the end of the code object.
type Label int

// Instruction is one bytecode instruction. Only the fields named in the
// opcode's comment are meaningful.
type Instruction struct {
	Op     OpCode         `cbor:"1,keyasint"`
	Arg    int            `cbor:"2,keyasint,omitempty"`
	Name   string         `cbor:"3,keyasint,omitempty"`
	BinOp  BinaryOperator `cbor:"4,keyasint,omitempty"`
	Start  Label          `cbor:"5,keyasint,omitempty"`
	End    Label          `cbor:"6,keyasint,omitempty"`
	Target Label          `cbor:"7,keyasint,omitempty"`
	Func   *FunctionCode  `cbor:"8,keyasint,omitempty"`
}

// StackEffect resolves the opcode's stack contract for this instruction.
func (in Instruction) StackEffect() (reads, pushes int) {
	info := in.Op.Info()
	reads, pushes = info.In, info.Out
	switch in.Op {
	case OpBuildList, OpBuildTuple, OpBuildMap:
		reads = in.Arg
	case OpCallFunction:
		reads = in.Arg + 1
	}
	return reads, pushes
}

// CodeObject is the compiled instruction sequence for a module or a
// function body. It is append-only while compiling and immutable once
// handed to the VM.
type CodeObject struct {
	Name string        `cbor:"1,keyasint"`
	Code []Instruction `cbor:"2,keyasint"`
}

// NewCodeObject creates an empty code object.
func NewCodeObject(name string) *CodeObject {
	return &CodeObject{Name: name}
}

// Emit appends an instruction and returns its index.
func (c *CodeObject) Emit(in Instruction) int {
	c.Code = append(c.Code, in)
	return len(c.Code) - 1
}

// Len returns the number of instructions, which is also the end label.
func (c *CodeObject) Len() int {
	return len(c.Code)
}

// FunctionCode is the compile-time description of a user-defined function.
type FunctionCode struct {
	Name   string      `cbor:"1,keyasint"`
	Params []string    `cbor:"2,keyasint,omitempty"`
	Code   *CodeObject `cbor:"3,keyasint"`
}
