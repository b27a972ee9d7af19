package host

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/notargets/vadd/device"
)

const sourceName = "program.cl"

// Defines holds the object-like macros of a compiled program
type Defines map[string]string

// Int returns the integer value of a macro
func (d Defines) Int(name string) (int, bool) {
	v, ok := d[name]
	if !ok {
		return 0, false
	}
	v = strings.Trim(strings.TrimSpace(v), "()")
	v = strings.TrimRight(v, "uUlL")
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// kernelParam is one parameter of a kernel declaration
type kernelParam struct {
	Name    string
	Type    string
	Const   bool
	Pointer bool
}

type kernelDecl struct {
	Name   string
	Line   int
	Params []kernelParam
	// Defines holds the program macros referenced by the kernel body
	Defines Defines
}

// programUnit is the result of compiling one source text
type programUnit struct {
	defines Defines
	kernels map[string]kernelDecl
}

var (
	defineRe = regexp.MustCompile(`^\s*#\s*define\s+([A-Za-z_]\w*)\s*(.*)$`)
	kernelRe = regexp.MustCompile(`(?:__kernel|\bkernel)\s+void\s+([A-Za-z_]\w*)\s*\(([^)]*)\)`)
)

type diagnostics []string

func (d *diagnostics) errorf(line int, format string, args ...interface{}) {
	*d = append(*d, fmt.Sprintf("%s:%d: error: %s", sourceName, line, fmt.Sprintf(format, args...)))
}

func (d diagnostics) err() error {
	if len(d) == 0 {
		return nil
	}
	return &device.CompileError{Log: strings.Join(d, "\n")}
}

// compile preprocesses source, locates its __kernel entry points and binds
// each one to a built-in body
func compile(source string) (*programUnit, error) {
	var diags diagnostics

	stripped, ok := stripComments(source)
	if !ok {
		diags.errorf(lineOf(source, strings.LastIndex(source, "/*")), "unterminated /* comment")
		return nil, diags.err()
	}

	unit := &programUnit{
		defines: make(Defines),
		kernels: make(map[string]kernelDecl),
	}

	// Preprocessor pass: record macros and blank directive lines so that
	// offsets still map to the original line numbers
	lines := strings.Split(stripped, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		if m := defineRe.FindStringSubmatch(trimmed); m != nil {
			unit.defines[m[1]] = strings.TrimSpace(m[2])
		}
		lines[i] = ""
	}
	code := strings.Join(lines, "\n")

	checkBalance(code, &diags)

	matches := kernelRe.FindAllStringSubmatchIndex(code, -1)
	if len(matches) == 0 && len(diags) == 0 {
		diags.errorf(1, "no __kernel functions defined in program")
	}
	for _, m := range matches {
		name := code[m[2]:m[3]]
		line := lineOf(code, m[0])
		decl := kernelDecl{Name: name, Line: line, Defines: make(Defines)}
		body, ok := kernelBody(code, m[1])
		if !ok {
			diags.errorf(line, "kernel '%s' has no body", name)
			continue
		}
		for macro, value := range unit.defines {
			if regexp.MustCompile(`\b` + regexp.QuoteMeta(macro) + `\b`).MatchString(body) {
				decl.Defines[macro] = value
			}
		}
		for _, raw := range splitParams(code[m[4]:m[5]]) {
			p, err := parseParam(raw)
			if err != nil {
				diags.errorf(line, "kernel '%s': %v", name, err)
				continue
			}
			decl.Params = append(decl.Params, p)
		}

		impl, ok := lookupBody(name)
		if !ok {
			diags.errorf(line, "kernel '%s' has no implementation on this device", name)
			continue
		}
		if impl.Params != len(decl.Params) {
			diags.errorf(line, "kernel '%s' declares %d parameters, device implementation takes %d",
				name, len(decl.Params), impl.Params)
			continue
		}
		if _, dup := unit.kernels[name]; dup {
			diags.errorf(line, "redefinition of kernel '%s'", name)
			continue
		}
		unit.kernels[name] = decl
	}

	if err := diags.err(); err != nil {
		return nil, err
	}
	return unit, nil
}

// kernelBody returns the brace-delimited body following a declaration
func kernelBody(code string, from int) (string, bool) {
	rest := code[from:]
	open := strings.IndexByte(rest, '{')
	if open < 0 || strings.TrimSpace(rest[:open]) != "" {
		return "", false
	}
	depth := 0
	for i := open; i < len(rest); i++ {
		switch rest[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return rest[open+1 : i], true
			}
		}
	}
	return "", false
}

// stripComments blanks // and /* */ comments, keeping newlines
func stripComments(src string) (string, bool) {
	var sb strings.Builder
	sb.Grow(len(src))
	for i := 0; i < len(src); i++ {
		switch {
		case strings.HasPrefix(src[i:], "//"):
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				sb.WriteByte('\n')
			}
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return "", false
			}
			comment := src[i : i+2+end+2]
			sb.WriteString(strings.Repeat("\n", strings.Count(comment, "\n")))
			sb.WriteByte(' ')
			i += len(comment) - 1
		default:
			sb.WriteByte(src[i])
		}
	}
	return sb.String(), true
}

// checkBalance reports the first unmatched bracket
func checkBalance(code string, diags *diagnostics) {
	pairs := map[byte]byte{')': '(', '}': '{', ']': '['}
	type open struct {
		ch  byte
		pos int
	}
	var stack []open
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch c {
		case '(', '{', '[':
			stack = append(stack, open{c, i})
		case ')', '}', ']':
			if len(stack) == 0 || stack[len(stack)-1].ch != pairs[c] {
				diags.errorf(lineOf(code, i), "unexpected '%c'", c)
				return
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		diags.errorf(lineOf(code, top.pos), "expected matching bracket for '%c'", top.ch)
	}
}

func splitParams(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "void" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseParam(raw string) (kernelParam, error) {
	var p kernelParam
	fields := strings.Fields(strings.ReplaceAll(raw, "*", " * "))
	if len(fields) < 2 {
		return p, fmt.Errorf("malformed parameter %q", raw)
	}
	p.Name = fields[len(fields)-1]
	var typeParts []string
	for _, f := range fields[:len(fields)-1] {
		switch f {
		case "__global", "global", "restrict", "__restrict":
		case "const":
			p.Const = true
		case "*":
			p.Pointer = true
		default:
			typeParts = append(typeParts, f)
		}
	}
	p.Type = strings.Join(typeParts, " ")
	if p.Type == "" {
		return p, fmt.Errorf("parameter %q has no type", p.Name)
	}
	return p, nil
}

func lineOf(s string, offset int) int {
	if offset < 0 {
		return 1
	}
	if offset > len(s) {
		offset = len(s)
	}
	return strings.Count(s[:offset], "\n") + 1
}

// Program is a compiled host program
type Program struct {
	ctx      *Context
	unit     *programUnit
	released bool
}

func (p *Program) Kernel(name string) (device.Kernel, error) {
	decl, ok := p.unit.kernels[name]
	if !ok {
		names := make([]string, 0, len(p.unit.kernels))
		for n := range p.unit.kernels {
			names = append(names, n)
		}
		return nil, fmt.Errorf("%w: %q (program defines %v)", device.ErrEntryPointNotFound, name, names)
	}
	body, _ := lookupBody(name)

	d := p.ctx.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.released {
		return nil, fmt.Errorf("%w: program", device.ErrReleased)
	}
	d.stats.Kernels++
	p.ctx.live.Kernels++
	return &Kernel{
		program: p,
		unit:    p.unit,
		decl:    decl,
		body:    body,
		args:    make([]*Buffer, len(decl.Params)),
	}, nil
}

func (p *Program) Release() error {
	d := p.ctx.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.released {
		return fmt.Errorf("%w: program", device.ErrReleased)
	}
	p.released = true
	d.stats.Programs--
	p.ctx.live.Programs--
	return nil
}

// Kernel is a host kernel with its bound arguments
type Kernel struct {
	program  *Program
	unit     *programUnit
	decl     kernelDecl
	body     Body
	args     []*Buffer
	released bool
}

func (k *Kernel) Name() string { return k.decl.Name }

// SetArg binds a buffer to a parameter slot. The buffer's access mode must
// agree with the parameter: const pointers are read, others are written.
func (k *Kernel) SetArg(index int, mem device.Memory) error {
	d := k.program.ctx.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if k.released {
		return fmt.Errorf("%w: kernel %s released", device.ErrArgumentBinding, k.decl.Name)
	}
	if index < 0 || index >= len(k.decl.Params) {
		return fmt.Errorf("%w: kernel %s takes %d arguments, index %d out of range",
			device.ErrArgumentBinding, k.decl.Name, len(k.decl.Params), index)
	}
	param := k.decl.Params[index]
	if !param.Pointer || param.Type != "float" {
		return fmt.Errorf("%w: kernel %s argument %d (%s %s) is not a float buffer",
			device.ErrArgumentBinding, k.decl.Name, index, param.Type, param.Name)
	}
	b, err := k.program.ctx.ownBuffer(mem)
	if err != nil {
		return fmt.Errorf("%w: kernel %s argument %d: %v", device.ErrArgumentBinding, k.decl.Name, index, err)
	}
	if param.Const && !b.mode.CanRead() {
		return fmt.Errorf("%w: kernel %s argument %d (%s) reads a %s buffer",
			device.ErrArgumentBinding, k.decl.Name, index, param.Name, b.mode)
	}
	if !param.Const && !b.mode.CanWrite() {
		return fmt.Errorf("%w: kernel %s argument %d (%s) writes a %s buffer",
			device.ErrArgumentBinding, k.decl.Name, index, param.Name, b.mode)
	}
	k.args[index] = b
	return nil
}

func (k *Kernel) Release() error {
	d := k.program.ctx.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if k.released {
		return fmt.Errorf("%w: kernel", device.ErrReleased)
	}
	k.released = true
	k.args = nil
	d.stats.Kernels--
	k.program.ctx.live.Kernels--
	return nil
}
