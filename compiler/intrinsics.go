package compiler

// Intrinsic procedures the code generator leans on. Each is emitted at
// most once per program, on first use; scratch cells are allocated from
// the same bump allocator as user symbols so a procedure's working set
// never aliases a live symbol. Procedures starting "std::" are VM
// stdlib and are not emitted here.

const (
	procDynamicAlloc = "dynamic_alloc"
	procI32Div       = "i32_div"
	procI32Mod       = "i32_mod"
	procU64Add       = "u64_wrapping_add"
	procU64Sub       = "u64_wrapping_sub"
	procU64Eq        = "u64_eq"
	procU64Lt        = "u64_lt"
	procU64Lte       = "u64_lte"
	procU64And       = "u64_and"
	procU64Or        = "u64_or"
	procU64Xor       = "u64_xor"

	// VM stdlib: IEEE-754 arithmetic and the native hash.
	procF32Add     = "std::math::f32_add"
	procF32Sub     = "std::math::f32_sub"
	procF32Mul     = "std::math::f32_mul"
	procF32Div     = "std::math::f32_div"
	procF32Lt      = "std::math::f32_lt"
	procF32Lte     = "std::math::f32_lte"
	procF64Add     = "std::math::f64_add"
	procF64Sub     = "std::math::f64_sub"
	procF64Mul     = "std::math::f64_mul"
	procF64Div     = "std::math::f64_div"
	procF64Lt      = "std::math::f64_lt"
	procF64Lte     = "std::math::f64_lte"
	procHashMemory = "std::crypto::hash_memory"
)

// intrinsic ensures the named helper procedure exists and returns its
// call name.
func (c *Compiler) intrinsic(name string) string {
	if c.intrinsics[name] {
		return name
	}
	c.intrinsics[name] = true
	var body []Instruction
	switch name {
	case procDynamicAlloc:
		body = dynamicAllocBody()
	case procI32Div:
		body = i32DivBody(c.memory)
	case procI32Mod:
		c.intrinsic(procI32Div)
		body = i32ModBody(c.memory)
	case procU64Add:
		body = u64AddBody(c.u64Scratch())
	case procU64Sub:
		body = u64SubBody(c.u64Scratch())
	case procU64Eq:
		body = u64EqBody(c.u64Scratch())
	case procU64Lt:
		body = u64LtBody(c.u64Scratch())
	case procU64Lte:
		body = u64LteBody(c.u64Scratch())
	case procU64And:
		body = u64BitwiseBody(c.u64Scratch(), OpU32CheckedAnd)
	case procU64Or:
		body = u64BitwiseBody(c.u64Scratch(), OpU32CheckedOr)
	case procU64Xor:
		body = u64BitwiseBody(c.u64Scratch(), OpU32CheckedXor)
	}
	c.procs = append(c.procs, Procedure{Name: name, Body: body})
	return name
}

// dynamicAllocBody advances the reserved heap pointer.
// Stack: [n] -> [old_heap_ptr].
func dynamicAllocBody() []Instruction {
	return []Instruction{
		MemLoad{Addr: addr(heapPtrAddr)}, // [hp, n]
		Swap{N: 1},                       // [n, hp]
		Dup{N: 1},                        // [hp, n, hp]
		Op{Kind: OpU32WrappingAdd},       // [hp+n, hp]
		MemStore{Addr: addr(heapPtrAddr)},
	}
}

// u64Scratch lazily allocates the shared scratch cells of the 64-bit
// helpers: [ah, al, bh, bl, carry, lo].
func (c *Compiler) u64Scratch() uint32 {
	if c.u64scratch == 0 {
		c.u64scratch = c.memory.Allocate(6)
	}
	return c.u64scratch
}

// storeU64Operands pops [bl, bh, al, ah] into scratch.
func storeU64Operands(s uint32) []Instruction {
	ah, al, bh, bl := s, s+1, s+2, s+3
	return []Instruction{
		MemStore{Addr: addr(bl)},
		MemStore{Addr: addr(bh)},
		MemStore{Addr: addr(al)},
		MemStore{Addr: addr(ah)},
	}
}

// Stack: [bl, bh, al, ah] -> [hi, lo] with lo on top.
func u64AddBody(s uint32) []Instruction {
	ah, al, bh, bl, carry, lo := s, s+1, s+2, s+3, s+4, s+5
	body := storeU64Operands(s)
	return append(body,
		MemLoad{Addr: addr(al)}, MemLoad{Addr: addr(bl)},
		Op{Kind: OpU32OverflowingAdd}, // [carry, lo]
		MemStore{Addr: addr(carry)},
		MemStore{Addr: addr(lo)},
		MemLoad{Addr: addr(ah)}, MemLoad{Addr: addr(bh)}, Op{Kind: OpU32WrappingAdd},
		MemLoad{Addr: addr(carry)}, Op{Kind: OpU32WrappingAdd}, // [hi]
		MemLoad{Addr: addr(lo)}, // [lo, hi]
	)
}

// Stack: [bl, bh, al, ah] -> [hi, lo] of a - b.
func u64SubBody(s uint32) []Instruction {
	ah, al, bh, bl, borrow, lo := s, s+1, s+2, s+3, s+4, s+5
	body := storeU64Operands(s)
	return append(body,
		MemLoad{Addr: addr(al)}, MemLoad{Addr: addr(bl)},
		Op{Kind: OpU32CheckedLt}, MemStore{Addr: addr(borrow)},
		MemLoad{Addr: addr(al)}, MemLoad{Addr: addr(bl)},
		Op{Kind: OpU32WrappingSub}, MemStore{Addr: addr(lo)},
		MemLoad{Addr: addr(ah)}, MemLoad{Addr: addr(bh)}, Op{Kind: OpU32WrappingSub},
		MemLoad{Addr: addr(borrow)}, Op{Kind: OpU32WrappingSub}, // [hi]
		MemLoad{Addr: addr(lo)},
	)
}

// Stack: [bl, bh, al, ah] -> [a == b].
func u64EqBody(s uint32) []Instruction {
	ah, al, bh, bl := s, s+1, s+2, s+3
	body := storeU64Operands(s)
	return append(body,
		MemLoad{Addr: addr(ah)}, MemLoad{Addr: addr(bh)}, Op{Kind: OpEq},
		MemLoad{Addr: addr(al)}, MemLoad{Addr: addr(bl)}, Op{Kind: OpEq},
		Op{Kind: OpAnd},
	)
}

func u64CompareCore(ah, al, bh, bl uint32) []Instruction {
	return []Instruction{
		MemLoad{Addr: addr(ah)}, MemLoad{Addr: addr(bh)}, Op{Kind: OpU32CheckedLt},
		MemLoad{Addr: addr(ah)}, MemLoad{Addr: addr(bh)}, Op{Kind: OpEq},
		MemLoad{Addr: addr(al)}, MemLoad{Addr: addr(bl)}, Op{Kind: OpU32CheckedLt},
		Op{Kind: OpAnd},
		Op{Kind: OpOr},
	}
}

// Stack: [bl, bh, al, ah] -> [a < b].
func u64LtBody(s uint32) []Instruction {
	ah, al, bh, bl := s, s+1, s+2, s+3
	return append(storeU64Operands(s), u64CompareCore(ah, al, bh, bl)...)
}

// Stack: [bl, bh, al, ah] -> [a <= b].
func u64LteBody(s uint32) []Instruction {
	ah, al, bh, bl := s, s+1, s+2, s+3
	body := append(storeU64Operands(s), u64CompareCore(ah, al, bh, bl)...)
	return append(body,
		MemLoad{Addr: addr(ah)}, MemLoad{Addr: addr(bh)}, Op{Kind: OpEq},
		MemLoad{Addr: addr(al)}, MemLoad{Addr: addr(bl)}, Op{Kind: OpEq},
		Op{Kind: OpAnd},
		Op{Kind: OpOr},
	)
}

// Stack: [bl, bh, al, ah] -> [hi, lo] of the cellwise operation.
func u64BitwiseBody(s uint32, kind OpKind) []Instruction {
	ah, al, bh, bl := s, s+1, s+2, s+3
	body := storeU64Operands(s)
	return append(body,
		MemLoad{Addr: addr(ah)}, MemLoad{Addr: addr(bh)}, Op{Kind: kind}, // [hi]
		MemLoad{Addr: addr(al)}, MemLoad{Addr: addr(bl)}, Op{Kind: kind}, // [lo, hi]
	)
}

// Stack: [b, a] -> [a / b] truncated toward zero.
func i32DivBody(m *Memory) []Instruction {
	s := m.Allocate(5)
	a, b, sa, sb, q := s, s+1, s+2, s+3, s+4
	return []Instruction{
		MemStore{Addr: addr(b)},
		MemStore{Addr: addr(a)},
		MemLoad{Addr: addr(a)}, Push{Value: 31}, Op{Kind: OpU32CheckedShr}, MemStore{Addr: addr(sa)},
		MemLoad{Addr: addr(b)}, Push{Value: 31}, Op{Kind: OpU32CheckedShr}, MemStore{Addr: addr(sb)},
		If{
			Cond: []Instruction{MemLoad{Addr: addr(sa)}},
			Then: []Instruction{Push{Value: 0}, MemLoad{Addr: addr(a)}, Op{Kind: OpU32WrappingSub}, MemStore{Addr: addr(a)}},
		},
		If{
			Cond: []Instruction{MemLoad{Addr: addr(sb)}},
			Then: []Instruction{Push{Value: 0}, MemLoad{Addr: addr(b)}, Op{Kind: OpU32WrappingSub}, MemStore{Addr: addr(b)}},
		},
		MemLoad{Addr: addr(a)}, MemLoad{Addr: addr(b)}, Op{Kind: OpU32CheckedDiv}, MemStore{Addr: addr(q)},
		If{
			Cond: []Instruction{MemLoad{Addr: addr(sa)}, MemLoad{Addr: addr(sb)}, Op{Kind: OpU32CheckedXor}},
			Then: []Instruction{Push{Value: 0}, MemLoad{Addr: addr(q)}, Op{Kind: OpU32WrappingSub}, MemStore{Addr: addr(q)}},
		},
		MemLoad{Addr: addr(q)},
	}
}

// Stack: [b, a] -> [a mod b]; the result follows the dividend's sign.
func i32ModBody(m *Memory) []Instruction {
	s := m.Allocate(2)
	a, b := s, s+1
	return []Instruction{
		MemStore{Addr: addr(b)},
		MemStore{Addr: addr(a)},
		MemLoad{Addr: addr(a)}, MemLoad{Addr: addr(b)}, Call{Name: procI32Div}, // [q]
		MemLoad{Addr: addr(b)}, Op{Kind: OpU32WrappingMul}, // [q*b]
		MemLoad{Addr: addr(a)}, Swap{N: 1}, Op{Kind: OpU32WrappingSub}, // [a - q*b]
	}
}
