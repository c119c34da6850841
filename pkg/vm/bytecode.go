package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/lispc/lispc/pkg/reader"
)

// The .lispc bytecode container: magic, format version, the constant
// pool (hash-keyed, lambda bodies nested as instruction streams), then
// the flat top-level instruction stream. Source handles are debug-only
// and are not persisted; a decoded table disassembles and runs but
// reports errors without source excerpts.
var bytecodeMagic = [4]byte{'L', 'I', 'S', 'P'}

const bytecodeVersion uint32 = 1

// EncodeBytecode serializes code and every pool constant into a .lispc
// container. Constants are written in ascending hash order so the output
// is deterministic for a given program.
func EncodeBytecode(code *OpCodeTable, pool *ConstantPool) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(bytecodeMagic[:])
	writeU32(&buf, bytecodeVersion)

	hashes := make([]uint64, 0, len(pool.byHash))
	for h := range pool.byHash {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })

	writeU32(&buf, uint32(len(hashes)))
	for _, h := range hashes {
		c := pool.byHash[h]
		writeU64(&buf, h)
		buf.WriteByte(byte(c.Kind))
		switch c.Kind {
		case ConstantString, ConstantSymbol:
			writeU32(&buf, uint32(len(c.String)))
			buf.WriteString(c.String)
		case ConstantOpCodes:
			if err := writeInstructions(&buf, c.OpCodes); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("bytecode: unsupported constant kind %d", c.Kind)
		}
	}

	if err := writeInstructions(&buf, code); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeBytecode parses a .lispc container back into a runnable table
// and its constant pool.
func DecodeBytecode(data []byte) (*OpCodeTable, *ConstantPool, error) {
	r := &byteReader{data: data}

	var magic [4]byte
	if err := r.read(magic[:]); err != nil {
		return nil, nil, err
	}
	if magic != bytecodeMagic {
		return nil, nil, fmt.Errorf("bytecode: bad magic %q", magic[:])
	}
	version, err := r.u32()
	if err != nil {
		return nil, nil, err
	}
	if version != bytecodeVersion {
		return nil, nil, fmt.Errorf("bytecode: unsupported version %d", version)
	}

	pool := NewConstantPool()
	count, err := r.u32()
	if err != nil {
		return nil, nil, err
	}
	for i := uint32(0); i < count; i++ {
		hash, err := r.u64()
		if err != nil {
			return nil, nil, err
		}
		kindByte, err := r.byte()
		if err != nil {
			return nil, nil, err
		}
		c := Constant{Kind: ConstantKind(kindByte)}
		switch c.Kind {
		case ConstantString, ConstantSymbol:
			n, err := r.u32()
			if err != nil {
				return nil, nil, err
			}
			s, err := r.bytes(int(n))
			if err != nil {
				return nil, nil, err
			}
			c.String = string(s)
		case ConstantOpCodes:
			t, err := readInstructions(r)
			if err != nil {
				return nil, nil, err
			}
			c.OpCodes = t
		default:
			return nil, nil, fmt.Errorf("bytecode: unknown constant kind %d", kindByte)
		}
		pool.byHash[hash] = c
	}

	code, err := readInstructions(r)
	if err != nil {
		return nil, nil, err
	}
	return code, pool, nil
}

func writeInstructions(buf *bytes.Buffer, t *OpCodeTable) error {
	writeU32(buf, uint32(t.Len()))
	for _, op := range t.Code {
		buf.WriteByte(byte(op.Kind))
		switch op.Kind {
		case OpDefGlobal, OpSetGlobal, OpGetGlobal, OpPushSymbol, OpPushString, OpAssert:
			writeU64(buf, op.Hash)
		case OpSetLocal, OpGetLocal, OpSetUpValue, OpGetUpValue:
			writeU32(buf, uint32(op.Index))
		case OpCall, OpTail, OpList:
			writeU32(buf, uint32(op.N))
		case OpAdd, OpSub, OpMul, OpDiv:
			writeU32(buf, uint32(op.N))
		case OpJmp, OpBranch:
			writeU32(buf, uint32(int32(op.Offset)))
		case OpPushInt:
			writeU64(buf, uint64(op.Int))
		case OpPushChar:
			writeU32(buf, uint32(op.Char))
		case OpLambda:
			writeU64(buf, op.Hash)
			writeU32(buf, uint32(op.N))
			buf.WriteByte(byte(op.LambdaArity.Kind))
			writeU32(buf, uint32(op.LambdaArity.Count))
		case OpCreateUpValue:
			writeU32(buf, uint32(op.UpValue.Frame))
			writeU32(buf, uint32(op.UpValue.Index))
		case OpIsType:
			buf.WriteByte(byte(op.IsTypeTag))
		case OpCompare:
			buf.WriteByte(byte(op.CompareOp))
		case OpApply, OpReturn, OpPop, OpPushTrue, OpPushNil,
			OpCar, OpCdr, OpCons, OpMapNew, OpMapInsert, OpMapGet, OpMapItems:
			// no operand
		default:
			return fmt.Errorf("bytecode: unsupported opcode kind %d", op.Kind)
		}
	}
	return nil
}

func readInstructions(r *byteReader) (*OpCodeTable, error) {
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	t := NewOpCodeTable()
	for i := uint32(0); i < count; i++ {
		kindByte, err := r.byte()
		if err != nil {
			return nil, err
		}
		op := OpCode{Kind: OpKind(kindByte)}
		switch op.Kind {
		case OpDefGlobal, OpSetGlobal, OpGetGlobal, OpPushSymbol, OpPushString, OpAssert:
			if op.Hash, err = r.u64(); err != nil {
				return nil, err
			}
		case OpSetLocal, OpGetLocal, OpSetUpValue, OpGetUpValue:
			v, err := r.u32()
			if err != nil {
				return nil, err
			}
			op.Index = int(v)
		case OpCall, OpTail, OpList, OpAdd, OpSub, OpMul, OpDiv:
			v, err := r.u32()
			if err != nil {
				return nil, err
			}
			op.N = int(v)
		case OpJmp, OpBranch:
			v, err := r.u32()
			if err != nil {
				return nil, err
			}
			op.Offset = int(int32(v))
		case OpPushInt:
			v, err := r.u64()
			if err != nil {
				return nil, err
			}
			op.Int = int64(v)
		case OpPushChar:
			v, err := r.u32()
			if err != nil {
				return nil, err
			}
			op.Char = rune(v)
		case OpLambda:
			if op.Hash, err = r.u64(); err != nil {
				return nil, err
			}
			n, err := r.u32()
			if err != nil {
				return nil, err
			}
			op.N = int(n)
			kind, err := r.byte()
			if err != nil {
				return nil, err
			}
			count, err := r.u32()
			if err != nil {
				return nil, err
			}
			op.LambdaArity = Arity{Kind: ArityKind(kind), Count: int(count)}
		case OpCreateUpValue:
			frame, err := r.u32()
			if err != nil {
				return nil, err
			}
			index, err := r.u32()
			if err != nil {
				return nil, err
			}
			op.UpValue = UpValueDescriptor{Frame: int(frame), Index: int(index)}
		case OpIsType:
			b, err := r.byte()
			if err != nil {
				return nil, err
			}
			op.IsTypeTag = Type(b)
		case OpCompare:
			b, err := r.byte()
			if err != nil {
				return nil, err
			}
			op.CompareOp = CompareKind(b)
		case OpApply, OpReturn, OpPop, OpPushTrue, OpPushNil,
			OpCar, OpCdr, OpCons, OpMapNew, OpMapInsert, OpMapGet, OpMapItems:
			// no operand
		default:
			return nil, fmt.Errorf("bytecode: unknown opcode kind %d", kindByte)
		}
		t.Push(op, reader.Source{})
	}
	return t, nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) read(dst []byte) error {
	if r.pos+len(dst) > len(r.data) {
		return fmt.Errorf("bytecode: truncated at offset %d", r.pos)
	}
	copy(dst, r.data[r.pos:])
	r.pos += len(dst)
	return nil
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("bytecode: truncated at offset %d", r.pos)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *byteReader) byte() (byte, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *byteReader) u32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *byteReader) u64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}
