package vm

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// ConstantPool is the content-addressed store of interned strings,
// symbols, and nested opcode tables, keyed by a 64-bit non-cryptographic
// hash of the constant's value. Both the compiler (while
// emitting) and the VM (while executing) share this type.
type ConstantPool struct {
	byHash map[uint64]Constant
	// collision buckets: constants whose hash collided with an existing,
	// unequal entry are chained here and probed linearly by equality.
	collisions map[uint64][]Constant
}

// NewConstantPool returns an empty pool.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{
		byHash:     make(map[uint64]Constant),
		collisions: make(map[uint64][]Constant),
	}
}

// HashString returns the 64-bit content hash used to key string/symbol
// constants.
func HashString(kind ConstantKind, s string) uint64 {
	h := xxhash.New()
	_ = binary.Write(h, binary.LittleEndian, int32(kind))
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// HashOpCodes returns the 64-bit content hash used to key a nested opcode
// table (a compiled lambda body). Every operand field participates, so
// two bodies hash equal only when their instruction streams are
// structurally identical.
func HashOpCodes(t *OpCodeTable) uint64 {
	h := xxhash.New()
	for _, op := range t.Code {
		_ = binary.Write(h, binary.LittleEndian, int32(op.Kind))
		_ = binary.Write(h, binary.LittleEndian, op.Hash)
		_ = binary.Write(h, binary.LittleEndian, int64(op.Index))
		_ = binary.Write(h, binary.LittleEndian, int64(op.N))
		_ = binary.Write(h, binary.LittleEndian, int64(op.Offset))
		_ = binary.Write(h, binary.LittleEndian, op.Int)
		_ = binary.Write(h, binary.LittleEndian, int32(op.Char))
		_ = binary.Write(h, binary.LittleEndian, int32(op.LambdaArity.Kind))
		_ = binary.Write(h, binary.LittleEndian, int32(op.LambdaArity.Count))
		_ = binary.Write(h, binary.LittleEndian, int32(op.IsTypeTag))
		_ = binary.Write(h, binary.LittleEndian, int32(op.UpValue.Frame))
		_ = binary.Write(h, binary.LittleEndian, int32(op.UpValue.Index))
		_ = binary.Write(h, binary.LittleEndian, int32(op.CompareOp))
	}
	return h.Sum64()
}

// InternString interns a string or symbol constant, returning its hash.
// On a hash collision with a structurally different constant already in
// the pool, it falls back to a linear-probed collision bucket.
func (p *ConstantPool) InternString(kind ConstantKind, s string) uint64 {
	hash := HashString(kind, s)
	c := Constant{Kind: kind, String: s}
	p.insert(hash, c)
	return hash
}

// InternOpCodes interns a nested opcode table (a lambda body), returning
// its hash.
func (p *ConstantPool) InternOpCodes(t *OpCodeTable) uint64 {
	hash := HashOpCodes(t)
	c := Constant{Kind: ConstantOpCodes, OpCodes: t}
	p.insert(hash, c)
	return hash
}

func (p *ConstantPool) insert(hash uint64, c Constant) {
	if existing, ok := p.byHash[hash]; !ok {
		p.byHash[hash] = c
		return
	} else if constantsEqual(existing, c) {
		return
	}
	for _, other := range p.collisions[hash] {
		if constantsEqual(other, c) {
			return
		}
	}
	p.collisions[hash] = append(p.collisions[hash], c)
}

// Get resolves hash to its constant (the first interned under that hash;
// colliding unequal constants live in the bucket and are vanishingly
// rare with full-field hashing).
func (p *ConstantPool) Get(hash uint64) (Constant, bool) {
	c, ok := p.byHash[hash]
	return c, ok
}

func constantsEqual(a, b Constant) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ConstantString, ConstantSymbol:
		return a.String == b.String
	case ConstantOpCodes:
		return a.OpCodes == b.OpCodes
	default:
		return false
	}
}

// Merge copies every entry of other into p (used when linking a module's
// constants into the VM's long-lived pool).
func (p *ConstantPool) Merge(other *ConstantPool) {
	for hash, c := range other.byHash {
		p.insert(hash, c)
	}
	for hash, bucket := range other.collisions {
		for _, c := range bucket {
			p.insert(hash, c)
		}
	}
}
