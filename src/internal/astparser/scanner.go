package astparser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/VectorBits/facetsplit/src/internal/abi"
)

// ErrUnbalanced is returned by ScanSource when brackets do not pair up.
var ErrUnbalanced = errors.New("unbalanced brackets")

// ScanSource builds a SourceUnit from Solidity text without a compiler. It
// recognises the declarations the analysis needs (contracts, functions, state
// variables, events, modifiers, structs, enums, value types, imports) and a
// coarse statement tree for function bodies. Node ids are synthetic; source
// offsets are real, so spans match what solc reports for the same declarations.
func ScanSource(source string) (*ParsedSource, error) {
	raw, code := blankSource(source)
	s := &scanner{
		raw:     raw,
		code:    code,
		types:   make(map[string]bool),
		structs: make(map[string]bool),
	}
	for _, m := range typeDeclRe.FindAllStringSubmatch(code, -1) {
		s.types[m[2]] = true
		if m[1] == "struct" {
			s.structs[m[2]] = true
		}
	}

	items, err := s.split(0, len(code))
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	unit := s.node(SourceUnit, 0, len(code))
	for _, it := range items {
		if n := s.fileMember(it); n != nil {
			unit.Nodes = append(unit.Nodes, n)
		}
	}
	return newParsedSource(unit, source), nil
}

type span struct{ start, end int }

type scanner struct {
	raw  string // comments blanked
	code string // comments and string contents blanked

	ids     int
	types   map[string]bool
	structs map[string]bool

	// per contract
	bases       map[string]bool
	isInterface bool
}

var (
	typeDeclRe     = regexp.MustCompile(`\b(contract|interface|library|struct|enum|type)\s+([A-Za-z_$][\w$]*)`)
	wordRe         = regexp.MustCompile(`^[A-Za-z_$][\w$]*`)
	pathRe         = regexp.MustCompile(`^[A-Za-z_$][\w$]*(?:\s*\.\s*[A-Za-z_$][\w$]*)*`)
	identRe        = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)
	identWordsRe   = regexp.MustCompile(`[A-Za-z_$][\w$]*`)
	quotedRe       = regexp.MustCompile(`["']([^"']+)["']`)
	contractHeadRe = regexp.MustCompile(`^\s*(abstract\s+)?(contract|interface|library)\s+([A-Za-z_$][\w$]*)\s*(?:\bis\b([\s\S]*))?$`)
	udvtRe         = regexp.MustCompile(`^\s*type\s+([A-Za-z_$][\w$]*)\s+is\s+`)
	receiverRe     = regexp.MustCompile(`(?:^|[^\w$.])([A-Za-z_$][\w$]*)$`)
	callRe         = regexp.MustCompile(`(\.\s*)?([A-Za-z_$][\w$]*)\s*(?:\{[^{}]*\}\s*)?\(`)
	declRe         = regexp.MustCompile(`^(?:mapping\s*\([\s\S]*\)|[A-Za-z_$][\w$.]*(?:\s*\[[^\]]*\])*)\s+(?:(?:memory|storage|calldata)\s+)?[A-Za-z_$][\w$]*$`)
	tupleDeclRe    = regexp.MustCompile(`^\(\s*,*\s*[A-Za-z_$][\w$.]*(?:\s*\[[^\]]*\])*\s+(?:(?:memory|storage|calldata)\s+)?[A-Za-z_$][\w$]*\s*[,)]`)
)

var callKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "return": true, "returns": true, "catch": true,
	"function": true, "mapping": true, "assembly": true, "modifier": true, "event": true,
	"error": true, "constructor": true, "emit": true, "new": true,
}

var declKeywords = map[string]bool{
	"public": true, "private": true, "internal": true, "external": true,
	"constant": true, "immutable": true, "override": true, "transient": true,
	"memory": true, "storage": true, "calldata": true, "indexed": true, "payable": true,
}

// blankSource replaces comments with spaces in raw, and additionally string
// literal contents in code. Offsets are preserved in both.
func blankSource(src string) (string, string) {
	raw := []byte(src)
	code := []byte(src)
	for i := 0; i < len(src); {
		switch {
		case strings.HasPrefix(src[i:], "//"):
			for ; i < len(src) && src[i] != '\n'; i++ {
				raw[i], code[i] = ' ', ' '
			}
		case strings.HasPrefix(src[i:], "/*"):
			stop := len(src)
			if end := strings.Index(src[i+2:], "*/"); end >= 0 {
				stop = i + 2 + end + 2
			}
			for ; i < stop; i++ {
				if src[i] != '\n' {
					raw[i], code[i] = ' ', ' '
				}
			}
		case src[i] == '"' || src[i] == '\'':
			q := src[i]
			i++
			for i < len(src) && src[i] != q && src[i] != '\n' {
				if src[i] == '\\' && i+1 < len(src) {
					code[i] = ' '
					i++
				}
				code[i] = ' '
				i++
			}
			i++
		default:
			i++
		}
	}
	return string(raw), string(code)
}

func (s *scanner) node(kind NodeType, start, end int) *Node {
	s.ids++
	return &Node{ID: s.ids, NodeType: kind, Src: fmt.Sprintf("%d:%d:0", start, end-start)}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (s *scanner) skipSpace(i, end int) int {
	for i < end && isSpace(s.code[i]) {
		i++
	}
	return i
}

func (s *scanner) trim(sp span) span {
	for sp.start < sp.end && isSpace(s.code[sp.start]) {
		sp.start++
	}
	for sp.end > sp.start && isSpace(s.code[sp.end-1]) {
		sp.end--
	}
	return sp
}

// word returns the identifier starting at i, if any.
func (s *scanner) word(i, end int) string {
	i = s.skipSpace(i, end)
	return wordRe.FindString(s.code[i:end])
}

func (s *scanner) hasWord(i, end int, w string) bool {
	if !strings.HasPrefix(s.code[i:end], w) {
		return false
	}
	return i+len(w) >= end || !isIdentChar(s.code[i+len(w)])
}

// matching returns the index of the bracket closing the one at open, or -1.
func (s *scanner) matching(open int) int {
	depth := 0
	for i := open; i < len(s.code); i++ {
		switch s.code[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// indexTop finds the first depth-0 occurrence of sub in [start, end).
func (s *scanner) indexTop(start, end int, sub string) int {
	depth := 0
	for i := start; i < end; i++ {
		if depth == 0 && strings.HasPrefix(s.code[i:end], sub) {
			return i
		}
		switch s.code[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		}
	}
	return -1
}

// split cuts [start, end) into top-level items: each ends at a depth-0 ';' or
// at the '}' closing a depth-0 block.
func (s *scanner) split(start, end int) ([]span, error) {
	var items []span
	depth := 0
	itemStart := -1
	for i := start; i < end; i++ {
		c := s.code[i]
		if itemStart < 0 {
			if isSpace(c) {
				continue
			}
			itemStart = i
		}
		switch c {
		case '(', '[', '{':
			depth++
		case ')', ']':
			depth--
		case '}':
			depth--
			if depth == 0 {
				items = append(items, span{itemStart, i + 1})
				itemStart = -1
			}
		case ';':
			if depth == 0 {
				items = append(items, span{itemStart, i + 1})
				itemStart = -1
			}
		}
		if depth < 0 {
			return nil, fmt.Errorf("%w at offset %d", ErrUnbalanced, i)
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: %d unclosed", ErrUnbalanced, depth)
	}
	if itemStart >= 0 {
		if sp := s.trim(span{itemStart, end}); sp.end > sp.start {
			items = append(items, sp)
		}
	}
	return items, nil
}

// splitTop cuts [start, end) at depth-0 separators, trimming each part.
// Empty parts are kept so positional lists (for headers) stay aligned.
func (s *scanner) splitTop(start, end int, sep byte) []span {
	var parts []span
	depth := 0
	partStart := start
	for i := start; i < end; i++ {
		switch s.code[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s.trim(span{partStart, i}))
				partStart = i + 1
			}
		}
	}
	return append(parts, s.trim(span{partStart, end}))
}

func (s *scanner) fileMember(sp span) *Node {
	word := s.word(sp.start, sp.end)
	switch word {
	case "pragma":
		n := s.node(PragmaDirective, sp.start, sp.end)
		n.Literals = strings.Fields(strings.TrimSuffix(s.raw[sp.start+len(word):sp.end], ";"))
		return n
	case "import":
		n := s.node(ImportDirective, sp.start, sp.end)
		if m := quotedRe.FindStringSubmatch(s.raw[sp.start:sp.end]); m != nil {
			n.File = m[1]
		}
		return n
	case "abstract", "contract", "interface", "library":
		return s.contract(sp)
	case "function":
		return s.function(sp, "freeFunction")
	}
	return s.declaration(sp, word, true)
}

// declaration handles the members allowed both at file and contract level.
func (s *scanner) declaration(sp span, word string, fileLevel bool) *Node {
	switch word {
	case "struct":
		return s.structDef(sp)
	case "enum":
		return s.enumDef(sp)
	case "type":
		return s.valueType(sp)
	case "event":
		return s.eventDef(sp, EventDefinition)
	case "error":
		return s.eventDef(sp, ErrorDefinition)
	case "using":
		return s.node(UsingForDirective, sp.start, sp.end)
	}
	n := s.stateVariable(sp)
	if fileLevel && n != nil && !n.Constant {
		return nil
	}
	return n
}

func (s *scanner) contract(sp span) *Node {
	open := strings.IndexByte(s.code[sp.start:sp.end], '{')
	if open < 0 {
		return nil
	}
	open += sp.start
	m := contractHeadRe.FindStringSubmatchIndex(s.code[sp.start:open])
	if m == nil {
		return nil
	}
	header := s.code[sp.start:open]

	c := s.node(ContractDefinition, sp.start, sp.end)
	c.Abstract = m[2] >= 0
	c.ContractKind = header[m[4]:m[5]]
	c.Name = header[m[6]:m[7]]
	c.Implemented = true

	s.bases = make(map[string]bool)
	s.isInterface = c.ContractKind == "interface"
	if m[8] >= 0 {
		for _, part := range s.splitTop(sp.start+m[8], sp.start+m[9], ',') {
			name := pathRe.FindString(s.code[part.start:part.end])
			if name == "" {
				continue
			}
			name = strings.Join(strings.Fields(name), "")
			spec := s.node(InheritanceSpecifier, part.start, part.end)
			spec.BaseName = s.node(IdentifierPath, part.start, part.start+len(name))
			spec.BaseName.Name = name
			c.BaseContracts = append(c.BaseContracts, spec)
			s.bases[name] = true
		}
	}

	closing := sp.end - 1
	items, err := s.split(open+1, closing)
	if err != nil {
		return c
	}
	for _, it := range items {
		if n := s.contractMember(it); n != nil {
			c.Nodes = append(c.Nodes, n)
		}
	}
	return c
}

func (s *scanner) contractMember(sp span) *Node {
	word := s.word(sp.start, sp.end)
	switch word {
	case "function":
		if s.isFunctionTypeVar(sp) {
			return s.declaration(sp, word, false)
		}
		return s.function(sp, word)
	case "constructor", "fallback", "receive":
		return s.function(sp, word)
	case "modifier":
		return s.modifierDef(sp)
	}
	return s.declaration(sp, word, false)
}

var functionAttrs = map[string]bool{
	"view": true, "pure": true, "nonpayable": true, "virtual": true, "returns": true,
}

// isFunctionTypeVar tells a function-typed state variable such as
// "function(uint) external hook;" from an unnamed pre-0.6 fallback: the
// variable has no body and ends in a name rather than an attribute.
func (s *scanner) isFunctionTypeVar(sp span) bool {
	from := s.skipSpace(sp.start, sp.end) + len("function")
	if k := s.skipSpace(from, sp.end); k >= sp.end || s.code[k] != '(' {
		return false
	}
	_, pClose, bodyOpen := s.header(from, sp.end)
	if pClose < 0 || bodyOpen >= sp.end || s.code[bodyOpen] != ';' {
		return false
	}
	end := bodyOpen
	if eq := s.indexTop(pClose+1, bodyOpen, "="); eq >= 0 {
		end = eq
	}
	tail := strings.TrimRight(s.code[pClose+1:end], " \t\r\n")
	if tail == "" || !isIdentChar(tail[len(tail)-1]) {
		return false
	}
	words := identWordsRe.FindAllString(tail, -1)
	last := words[len(words)-1]
	return !declKeywords[last] && !functionAttrs[last]
}

// header locates the parameter list and the body (or terminating ';') of a
// function-like member starting after its keyword.
func (s *scanner) header(from, end int) (pOpen, pClose, bodyOpen int) {
	pOpen = strings.IndexByte(s.code[from:end], '(')
	if pOpen < 0 {
		return -1, -1, -1
	}
	pOpen += from
	pClose = s.matching(pOpen)
	if pClose < 0 || pClose >= end {
		return -1, -1, -1
	}
	bodyOpen = end
	depth := 0
	for i := pClose + 1; i < end; i++ {
		switch s.code[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case '{':
			if depth == 0 {
				return pOpen, pClose, i
			}
		case ';':
			if depth == 0 {
				return pOpen, pClose, i
			}
		}
	}
	return pOpen, pClose, bodyOpen
}

func (s *scanner) function(sp span, kind string) *Node {
	keywordEnd := s.skipSpace(sp.start, sp.end) + len(kind)
	if kind == "freeFunction" {
		keywordEnd = s.skipSpace(sp.start, sp.end) + len("function")
	}
	fn := s.node(FunctionDefinition, sp.start, sp.end)
	fn.Kind = kind
	if kind == "function" || kind == "freeFunction" {
		fn.Name = s.word(keywordEnd, sp.end)
		if fn.Name == "" {
			// pre-0.6 unnamed fallback
			fn.Kind = "fallback"
		}
	}

	pOpen, pClose, bodyOpen := s.header(keywordEnd, sp.end)
	if pOpen < 0 {
		return nil
	}
	fn.Parameters = s.paramList(pOpen, pClose)
	fn.ReturnParameters = s.paramList(-1, -1)
	s.attributes(fn, pClose+1, bodyOpen)

	if fn.Visibility == "" {
		switch {
		case fn.Kind == "fallback" || fn.Kind == "receive" || s.isInterface:
			fn.Visibility = "external"
		case fn.Kind == "freeFunction":
			fn.Visibility = "internal"
		default:
			fn.Visibility = "public"
		}
	}
	if fn.StateMutability == "" {
		fn.StateMutability = "nonpayable"
	}
	if bodyOpen < sp.end && s.code[bodyOpen] == '{' {
		fn.Body = s.block(bodyOpen, s.matching(bodyOpen))
		fn.Implemented = true
	}
	return fn
}

// attributes reads visibility, mutability, returns and modifier invocations
// between the parameter list and the body.
func (s *scanner) attributes(fn *Node, start, end int) {
	for i := start; i < end; {
		i = s.skipSpace(i, end)
		if i >= end {
			return
		}
		w := pathRe.FindString(s.code[i:end])
		if w == "" {
			i++
			continue
		}
		next := s.skipSpace(i+len(w), end)
		hasArgs := next < end && s.code[next] == '('
		argsClose := -1
		if hasArgs {
			argsClose = s.matching(next)
			if argsClose < 0 || argsClose >= end {
				return
			}
		}

		switch w {
		case "public", "external", "internal", "private":
			fn.Visibility = w
		case "pure", "view", "payable", "nonpayable":
			fn.StateMutability = w
		case "constant":
			fn.StateMutability = "view"
		case "virtual", "override":
		case "returns":
			if hasArgs {
				fn.ReturnParameters = s.paramList(next, argsClose)
			}
		default:
			name := strings.Join(strings.Fields(w), "")
			inv := s.node(ModifierInvocation, i, i+len(w))
			inv.Kind = "modifierInvocation"
			if s.bases[name] || fn.Kind == "constructor" && s.types[name] {
				inv.Kind = "baseConstructorSpecifier"
			}
			inv.ModifierName = s.node(IdentifierPath, i, i+len(w))
			inv.ModifierName.Name = name
			if hasArgs {
				inv.Arguments = s.calls(next+1, argsClose)
			}
			fn.Modifiers = append(fn.Modifiers, inv)
		}

		i += len(w)
		if hasArgs {
			i = argsClose + 1
		}
	}
}

// paramList builds a ParameterList from the parenthesised range [open, close].
// A negative open yields an empty list.
func (s *scanner) paramList(open, close int) *Node {
	if open < 0 {
		return &Node{NodeType: ParameterList}
	}
	list := s.node(ParameterList, open, close+1)
	for _, part := range s.splitTop(open+1, close, ',') {
		if part.end <= part.start {
			continue
		}
		if p := s.parameter(part); p != nil {
			list.Params = append(list.Params, p)
		}
	}
	return list
}

func (s *scanner) parameter(sp span) *Node {
	typ, rest := s.typeName(sp.start, sp.end)
	v := s.node(VariableDeclaration, sp.start, sp.end)
	v.TypeName = typ
	for _, w := range identWordsRe.FindAllString(s.code[rest:sp.end], -1) {
		switch w {
		case "memory", "storage", "calldata":
			v.StorageLoc = w
		case "indexed", "payable":
		default:
			v.Name = w
		}
	}
	return v
}

// typeName parses a type from the start of [start, end) and returns it with the
// offset just past it. Names and data locations after the type are left to the
// caller.
func (s *scanner) typeName(start, end int) (*Node, int) {
	i := s.skipSpace(start, end)
	typeStart := i
	var t *Node

	switch {
	case i >= end:
		return nil, end
	case s.hasWord(i, end, "mapping"):
		open := s.skipSpace(i+len("mapping"), end)
		if open >= end || s.code[open] != '(' {
			return nil, end
		}
		closing := s.matching(open)
		if closing < 0 || closing >= end {
			return nil, end
		}
		arrow := s.indexTop(open+1, closing, "=>")
		if arrow < 0 {
			return nil, end
		}
		t = s.node(Mapping, i, closing+1)
		t.KeyType, _ = s.typeName(open+1, arrow)
		t.ValueType, _ = s.typeName(arrow+2, closing)
		i = closing + 1
	case s.hasWord(i, end, "function"):
		return s.node(FunctionTypeName, i, end), end
	default:
		path := pathRe.FindString(s.code[i:end])
		if path == "" {
			return nil, end
		}
		j := i + len(path)
		name := strings.Join(strings.Fields(path), "")
		if name == "address" {
			if k := s.skipSpace(j, end); s.hasWord(k, end, "payable") {
				j = k + len("payable")
			}
		}
		if _, err := abi.CanonicalElementary(name); err == nil {
			t = s.node(ElementaryTypeName, i, j)
			t.Name = name
		} else {
			t = s.node(UserDefinedTypeName, i, j)
			t.Name = name
			t.PathNode = s.node(IdentifierPath, i, j)
			t.PathNode.Name = name
		}
		i = j
	}

	for {
		k := s.skipSpace(i, end)
		if k >= end || s.code[k] != '[' {
			break
		}
		closing := s.matching(k)
		if closing < 0 || closing >= end {
			break
		}
		arr := s.node(ArrayTypeName, typeStart, closing+1)
		arr.BaseType = t
		if inner := strings.TrimSpace(s.code[k+1 : closing]); inner != "" {
			length := s.node(Literal, k+1, closing)
			if identRe.MatchString(inner) {
				length.NodeType = Identifier
				length.Name = inner
			} else {
				length.Value = inner
			}
			arr.Length = length
		}
		t = arr
		i = closing + 1
	}
	return t, i
}

func (s *scanner) stateVariable(sp span) *Node {
	end := sp.end
	if s.code[end-1] == ';' {
		end--
	}
	eq := s.indexTop(sp.start, end, "=")
	declEnd := end
	if eq >= 0 {
		declEnd = eq
	}

	typ, rest := s.typeName(sp.start, declEnd)
	if typ == nil {
		return nil
	}
	if typ.NodeType == FunctionTypeName {
		// the type swallowed the declaration; the name is its last word
		words := identWordsRe.FindAllString(s.code[sp.start:declEnd], -1)
		rest = declEnd
		if n := len(words); n > 0 && !declKeywords[words[n-1]] {
			rest = sp.start + strings.LastIndex(s.code[sp.start:declEnd], words[n-1])
		}
	}
	v := s.node(VariableDeclaration, sp.start, sp.end)
	v.TypeName = typ
	v.StateVariable = true
	v.Visibility = "internal"
	v.Mutability = "mutable"
	for _, w := range identWordsRe.FindAllString(s.code[rest:declEnd], -1) {
		switch w {
		case "public", "private", "internal":
			v.Visibility = w
		case "constant":
			v.Constant = true
			v.Mutability = "constant"
		case "immutable":
			v.Mutability = "immutable"
		default:
			if !declKeywords[w] {
				v.Name = w
			}
		}
	}
	if v.Name == "" {
		return nil
	}
	if eq >= 0 {
		init := s.trim(span{eq + 1, end})
		if text := s.raw[init.start:init.end]; numberRe.MatchString(text) {
			v.Initializer = s.node(Literal, init.start, init.end)
			v.Initializer.Value = text
		} else if init.end > init.start {
			v.Initializer = s.expr(init.start, init.end)
		}
	}
	return v
}

func (s *scanner) eventDef(sp span, kind NodeType) *Node {
	keyword := s.word(sp.start, sp.end)
	from := s.skipSpace(sp.start, sp.end) + len(keyword)
	n := s.node(kind, sp.start, sp.end)
	n.Name = s.word(from, sp.end)
	pOpen, pClose, _ := s.header(from, sp.end)
	if pOpen < 0 {
		return nil
	}
	n.Parameters = s.paramList(pOpen, pClose)
	return n
}

func (s *scanner) modifierDef(sp span) *Node {
	from := s.skipSpace(sp.start, sp.end) + len("modifier")
	n := s.node(ModifierDefinition, sp.start, sp.end)
	n.Name = s.word(from, sp.end)
	n.Parameters = s.paramList(-1, -1)

	open := s.indexTop(from, sp.end, "{")
	if pOpen := s.indexTop(from, sp.end, "("); pOpen >= 0 && (open < 0 || pOpen < open) {
		n.Parameters = s.paramList(pOpen, s.matching(pOpen))
	}
	if open >= 0 {
		n.Body = s.block(open, s.matching(open))
	}
	return n
}

func (s *scanner) structDef(sp span) *Node {
	from := s.skipSpace(sp.start, sp.end) + len("struct")
	n := s.node(StructDefinition, sp.start, sp.end)
	n.Name = s.word(from, sp.end)
	open := strings.IndexByte(s.code[from:sp.end], '{')
	if open < 0 {
		return nil
	}
	open += from
	items, err := s.split(open+1, s.matching(open))
	if err != nil {
		return nil
	}
	for _, it := range items {
		end := it.end
		if s.code[end-1] == ';' {
			end--
		}
		n.Members = append(n.Members, s.parameter(span{it.start, end}))
	}
	return n
}

func (s *scanner) enumDef(sp span) *Node {
	from := s.skipSpace(sp.start, sp.end) + len("enum")
	n := s.node(EnumDefinition, sp.start, sp.end)
	n.Name = s.word(from, sp.end)
	open := strings.IndexByte(s.code[from:sp.end], '{')
	if open < 0 {
		return nil
	}
	open += from
	for _, part := range s.splitTop(open+1, s.matching(open), ',') {
		if part.end > part.start {
			v := s.node(EnumValue, part.start, part.end)
			v.Name = s.code[part.start:part.end]
			n.Members = append(n.Members, v)
		}
	}
	return n
}

func (s *scanner) valueType(sp span) *Node {
	m := udvtRe.FindStringSubmatchIndex(s.code[sp.start:sp.end])
	if m == nil {
		return nil
	}
	n := s.node(UserDefinedValueTypeDefinition, sp.start, sp.end)
	n.Name = s.code[sp.start+m[2] : sp.start+m[3]]
	n.UnderlyingType, _ = s.typeName(sp.start+m[1], sp.end)
	return n
}

// block builds a Block from the braces at [open, closing].
func (s *scanner) block(open, closing int) *Node {
	if closing < 0 {
		closing = open
	}
	b := s.node(Block, open, closing+1)
	items, err := s.split(open+1, closing)
	if err != nil {
		return b
	}
	b.Statements = s.statements(items)
	return b
}

func (s *scanner) statements(items []span) []*Node {
	var out []*Node
	for _, it := range items {
		word := s.word(it.start, it.end)
		var prev *Node
		if len(out) > 0 {
			prev = out[len(out)-1]
		}

		switch {
		case word == "else" && prev != nil && prev.NodeType == IfStatement:
			last := prev
			for last.FalseBody != nil && last.FalseBody.NodeType == IfStatement {
				last = last.FalseBody
			}
			if last.FalseBody == nil {
				last.FalseBody = s.branch(s.skipSpace(it.start, it.end)+len("else"), it.end)
				continue
			}
		case word == "catch" && prev != nil && prev.NodeType == TryStatement:
			clause := s.node(TryCatchClause, it.start, it.end)
			if open := s.indexTop(it.start, it.end, "{"); open >= 0 {
				clause.Block = s.block(open, s.matching(open))
			}
			prev.Clauses = append(prev.Clauses, clause)
			continue
		case word == "while" && prev != nil && prev.NodeType == DoWhileStatement && prev.Condition == nil:
			if open := strings.IndexByte(s.code[it.start:it.end], '('); open >= 0 {
				open += it.start
				prev.Condition = s.expr(open+1, s.matching(open))
			}
			continue
		}

		if n := s.statement(it); n != nil {
			out = append(out, n)
		}
	}
	return out
}

// branch is the body of a control statement: a block or a single statement.
func (s *scanner) branch(start, end int) *Node {
	k := s.skipSpace(start, end)
	if k >= end {
		return nil
	}
	if s.code[k] == '{' {
		return s.block(k, s.matching(k))
	}
	return s.statement(span{k, end})
}

// condition returns the parenthesised range following a control keyword.
func (s *scanner) condition(sp span) (open, closing int) {
	open = strings.IndexByte(s.code[sp.start:sp.end], '(')
	if open < 0 {
		return -1, -1
	}
	open += sp.start
	closing = s.matching(open)
	if closing < 0 || closing >= sp.end {
		return -1, -1
	}
	return open, closing
}

func (s *scanner) statement(sp span) *Node {
	sp = s.trim(sp)
	if sp.end <= sp.start {
		return nil
	}
	word := s.word(sp.start, sp.end)
	after := sp.start + len(word)

	switch word {
	case "if", "while":
		open, closing := s.condition(sp)
		if open < 0 {
			return nil
		}
		kind := IfStatement
		if word == "while" {
			kind = WhileStatement
		}
		n := s.node(kind, sp.start, sp.end)
		n.Condition = s.expr(open+1, closing)
		if kind == IfStatement {
			n.TrueBody = s.branch(closing+1, sp.end)
		} else {
			n.Body = s.branch(closing+1, sp.end)
		}
		return n
	case "for":
		open, closing := s.condition(sp)
		if open < 0 {
			return nil
		}
		n := s.node(ForStatement, sp.start, sp.end)
		parts := s.splitTop(open+1, closing, ';')
		if len(parts) == 3 {
			if parts[0].end > parts[0].start {
				n.InitializationExpression = s.simple(parts[0])
			}
			if parts[1].end > parts[1].start {
				n.Condition = s.expr(parts[1].start, parts[1].end)
			}
			if parts[2].end > parts[2].start {
				n.LoopExpression = s.node(ExpressionStatement, parts[2].start, parts[2].end)
				n.LoopExpression.Expression = s.expr(parts[2].start, parts[2].end)
			}
		}
		n.Body = s.branch(closing+1, sp.end)
		return n
	case "do":
		n := s.node(DoWhileStatement, sp.start, sp.end)
		n.Body = s.branch(after, sp.end)
		return n
	case "emit":
		n := s.node(EmitStatement, sp.start, sp.end)
		n.EventCall = s.expr(after, s.stripSemicolon(sp))
		return n
	case "return":
		n := s.node(Return, sp.start, sp.end)
		if end := s.stripSemicolon(sp); s.skipSpace(after, end) < end {
			n.Expression = s.expr(after, end)
		}
		return n
	case "revert":
		if s.word(after, sp.end) != "" {
			n := s.node(RevertStatement, sp.start, sp.end)
			n.ErrorCall = s.expr(after, s.stripSemicolon(sp))
			return n
		}
	case "unchecked":
		if open := s.indexTop(after, sp.end, "{"); open >= 0 {
			b := s.block(open, s.matching(open))
			b.NodeType = UncheckedBlock
			return b
		}
	case "assembly":
		return s.node(InlineAssembly, sp.start, sp.end)
	case "try":
		n := s.node(TryStatement, sp.start, sp.end)
		open := s.indexTop(after, sp.end, "{")
		callEnd := open
		if r := s.indexTop(after, sp.end, "returns"); r >= 0 && (open < 0 || r < open) {
			callEnd = r
		}
		if callEnd < 0 {
			callEnd = sp.end
		}
		n.ExternalCall = s.expr(after, callEnd)
		if open >= 0 {
			clause := s.node(TryCatchClause, open, sp.end)
			clause.Block = s.block(open, s.matching(open))
			n.Clauses = append(n.Clauses, clause)
		}
		return n
	case "continue":
		return s.node(Continue, sp.start, sp.end)
	case "break":
		return s.node(Break, sp.start, sp.end)
	case "_":
		return s.node(PlaceholderStatement, sp.start, sp.end)
	case "":
		if s.code[sp.start] == '{' {
			return s.block(sp.start, s.matching(sp.start))
		}
	}
	return s.simple(sp)
}

func (s *scanner) stripSemicolon(sp span) int {
	end := sp.end
	for end > sp.start && (isSpace(s.code[end-1]) || s.code[end-1] == ';') {
		end--
	}
	return end
}

// simple classifies an expression or declaration statement.
func (s *scanner) simple(sp span) *Node {
	end := s.stripSemicolon(sp)
	if opStart, opEnd, ok := s.assignOp(sp.start, end); ok {
		lhs := s.trim(span{sp.start, opStart})
		if s.isDeclaration(lhs) {
			n := s.node(VariableDeclarationStatement, sp.start, sp.end)
			n.Declarations = []*Node{s.parameter(lhs)}
			n.InitialValue = s.expr(opEnd, end)
			return n
		}
		n := s.node(ExpressionStatement, sp.start, sp.end)
		a := s.node(Assignment, sp.start, end)
		a.Operator = s.code[opStart:opEnd]
		a.LeftHandSide = s.expr(lhs.start, lhs.end)
		a.RightHandSide = s.expr(opEnd, end)
		n.Expression = a
		return n
	}
	if body := s.trim(span{sp.start, end}); s.isDeclaration(body) {
		n := s.node(VariableDeclarationStatement, sp.start, sp.end)
		n.Declarations = []*Node{s.parameter(body)}
		return n
	}
	n := s.node(ExpressionStatement, sp.start, sp.end)
	n.Expression = s.expr(sp.start, end)
	return n
}

// assignOp finds the first depth-0 assignment operator, including compound ones.
func (s *scanner) assignOp(start, end int) (opStart, opEnd int, ok bool) {
	depth := 0
	for i := start; i < end; i++ {
		c := s.code[i]
		switch c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		}
		if depth != 0 || c != '=' {
			continue
		}
		if i+1 < end && (s.code[i+1] == '=' || s.code[i+1] == '>') {
			i++
			continue
		}
		if i == start {
			continue
		}
		prev := s.code[i-1]
		switch {
		case prev == '=' || prev == '!':
			continue
		case prev == '<' || prev == '>':
			if i-2 >= start && s.code[i-2] == prev {
				return i - 2, i + 1, true
			}
			continue
		case strings.IndexByte("+-*/%|&^", prev) >= 0:
			return i - 1, i + 1, true
		}
		return i, i + 1, true
	}
	return 0, 0, false
}

func (s *scanner) isDeclaration(sp span) bool {
	text := s.code[sp.start:sp.end]
	if w := wordRe.FindString(text); w == "delete" || w == "return" {
		return false
	}
	return declRe.MatchString(text) || tupleDeclRe.MatchString(text)
}

// expr returns the calls made within [start, end): the first call carries the
// rest as arguments so every call site stays reachable. Without calls it is an
// empty tuple.
func (s *scanner) expr(start, end int) *Node {
	calls := s.calls(start, end)
	if len(calls) == 0 {
		return s.node(TupleExpression, start, end)
	}
	first := calls[0]
	first.Arguments = append(first.Arguments, calls[1:]...)
	return first
}

func (s *scanner) calls(start, end int) []*Node {
	if start < 0 || end <= start {
		return nil
	}
	text := s.code[start:end]
	var out []*Node
	for _, m := range callRe.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[4]:m[5]]
		member := m[2] >= 0
		if !member && callKeywords[name] {
			continue
		}
		call := s.node(FunctionCall, start+m[0], start+m[1])
		call.Kind = "functionCall"

		before := strings.TrimRight(text[:m[0]], " \t\n\r")
		switch {
		case member:
			call.Expression = s.node(MemberAccess, start+m[0], start+m[5])
			call.Expression.MemberName = name
			if r := receiverRe.FindStringSubmatchIndex(before); r != nil {
				call.Expression.Expression = s.node(Identifier, start+r[2], start+r[3])
				call.Expression.Expression.Name = before[r[2]:r[3]]
			}
		case strings.HasSuffix(before, "new") && (len(before) == 3 || !isIdentChar(before[len(before)-4])):
			call.Expression = s.node(NewExpression, start+m[4], start+m[5])
		default:
			if _, err := abi.CanonicalElementary(name); err == nil || name == "payable" {
				call.Kind = "typeConversion"
			} else if s.structs[name] {
				call.Kind = "structConstructorCall"
			} else if s.types[name] {
				call.Kind = "typeConversion"
			}
			call.Expression = s.node(Identifier, start+m[4], start+m[5])
			call.Expression.Name = name
		}
		out = append(out, call)
	}
	return out
}
