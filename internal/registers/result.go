package registers

// Result is the outcome of decoding a single register: either a Value
// or the error that prevented it.
type Result struct {
	Value Value
	Err   error
}

// OK reports whether the register decoded.
func (r Result) OK() bool { return r.Err == nil }

// DecodeMap decodes every register in regs. A bad register never
// affects its neighbours.
func DecodeMap(regs map[string]string) map[string]Result {
	out := make(map[string]Result, len(regs))
	for name, raw := range regs {
		v, err := Decode(raw)
		out[name] = Result{Value: v, Err: err}
	}
	return out
}

// Text decodes register name from regs as text. ok is false when the
// register is absent, malformed or not text.
func Text(regs map[string]string, name string) (string, bool) {
	raw, ok := regs[name]
	if !ok {
		return "", false
	}
	v, err := Decode(raw)
	if err != nil {
		return "", false
	}
	s, err := v.Text()
	return s, err == nil
}
