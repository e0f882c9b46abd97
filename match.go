package iamgraph

// AWS-style wildcard matching over action names ("s3:GetObject") and
// ARN-shaped resource strings. `*` matches any run of characters including
// the empty run, `?` matches exactly one character, everything else matches
// literally and case-sensitively. Patterns are never decomposed into
// service/action or ARN segments; they match against the full string.

// matchPattern reports whether s is matched by pattern.
func matchPattern(pattern, s string) bool {
	p, n := 0, 0
	star, mark := -1, 0
	for n < len(s) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == s[n]):
			p++
			n++
		case p < len(pattern) && pattern[p] == '*':
			star, mark = p, n
			p++
		case star >= 0:
			// Backtrack: let the last `*` swallow one more character.
			p = star + 1
			mark++
			n = mark
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// matchAny reports whether any pattern in patterns matches s.
func matchAny(patterns []string, s string) bool {
	for _, p := range patterns {
		if matchPattern(p, s) {
			return true
		}
	}
	return false
}

// patternsIntersect reports whether the languages of two wildcard patterns
// share at least one concrete string. This is an intersection test over the
// two glob grammars, not string containment: "s3:Get*" and "s3:*Object"
// intersect via "s3:GetObject" even though neither matches the other.
func patternsIntersect(a, b string) bool {
	type pos struct{ i, j int }
	memo := map[pos]bool{}
	var walk func(i, j int) bool
	walk = func(i, j int) bool {
		key := pos{i, j}
		if v, ok := memo[key]; ok {
			return v
		}
		var v bool
		switch {
		case i == len(a) && j == len(b):
			v = true
		case i < len(a) && a[i] == '*':
			// The star matches empty, or emits whatever b's head consumes.
			v = walk(i+1, j) || (j < len(b) && walk(i, j+1))
		case j < len(b) && b[j] == '*':
			v = walk(i, j+1) || (i < len(a) && walk(i+1, j))
		case i == len(a) || j == len(b):
			v = false
		case a[i] == '?' || b[j] == '?' || a[i] == b[j]:
			v = walk(i+1, j+1)
		}
		memo[key] = v
		return v
	}
	return walk(0, 0)
}

// intersectionSurvives reports whether some concrete string is matched by
// both a and b but not by deny, i.e. whether (L(a) ∩ L(b)) \ L(deny) is
// non-empty. Used to decide whether a Deny pattern fully covers the overlap
// between a query pattern and an Allow pattern.
//
// Each pattern is treated as a position-set NFA (state = index into the
// pattern, `*` self-loops and has an epsilon edge forward). The product of
// the three automata is searched breadth-first over an alphabet consisting
// of every literal byte appearing in any pattern plus one sentinel byte
// standing in for all other characters.
func intersectionSurvives(a, b, deny string) bool {
	const sentinel = byte(0x00)
	alphabet := []byte{sentinel}
	seenByte := map[byte]bool{sentinel: true}
	for _, p := range []string{a, b, deny} {
		for k := 0; k < len(p); k++ {
			c := p[k]
			if c != '*' && c != '?' && !seenByte[c] {
				seenByte[c] = true
				alphabet = append(alphabet, c)
			}
		}
	}

	type state struct{ sa, sb, sd string }
	start := state{
		globClosure(a, globStart(a)).key(),
		globClosure(b, globStart(b)).key(),
		globClosure(deny, globStart(deny)).key(),
	}
	visited := map[state]bool{start: true}
	queue := []state{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		sa, sb, sd := posSetFromKey(cur.sa), posSetFromKey(cur.sb), posSetFromKey(cur.sd)
		if sa.contains(len(a)) && sb.contains(len(b)) && !sd.contains(len(deny)) {
			return true
		}
		for _, c := range alphabet {
			na := globClosure(a, globStep(a, sa, c))
			if na.empty() {
				continue
			}
			nb := globClosure(b, globStep(b, sb, c))
			if nb.empty() {
				continue
			}
			nd := globClosure(deny, globStep(deny, sd, c))
			next := state{na.key(), nb.key(), nd.key()}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// posSet is a set of NFA positions, one bit per index 0..len(pattern).
type posSet []uint64

func newPosSet(n int) posSet {
	return make(posSet, n/64+1)
}

func (s posSet) add(i int)           { s[i/64] |= 1 << (i % 64) }
func (s posSet) contains(i int) bool { return s[i/64]&(1<<(i%64)) != 0 }

func (s posSet) empty() bool {
	for _, w := range s {
		if w != 0 {
			return false
		}
	}
	return true
}

func (s posSet) key() string {
	buf := make([]byte, 0, len(s)*8)
	for _, w := range s {
		for k := 0; k < 8; k++ {
			buf = append(buf, byte(w>>(8*k)))
		}
	}
	return string(buf)
}

func posSetFromKey(key string) posSet {
	s := make(posSet, len(key)/8)
	for i := range s {
		var w uint64
		for k := 0; k < 8; k++ {
			w |= uint64(key[i*8+k]) << (8 * k)
		}
		s[i] = w
	}
	return s
}

func globStart(pattern string) posSet {
	s := newPosSet(len(pattern))
	s.add(0)
	return s
}

// globClosure adds every position reachable without consuming a character:
// a `*` may match the empty run and fall through to the next position.
func globClosure(pattern string, s posSet) posSet {
	for i := 0; i <= len(pattern); i++ {
		if s.contains(i) && i < len(pattern) && pattern[i] == '*' {
			s.add(i + 1)
		}
	}
	return s
}

// globStep consumes one character c from every position in s.
func globStep(pattern string, s posSet, c byte) posSet {
	out := newPosSet(len(pattern))
	for i := 0; i < len(pattern); i++ {
		if !s.contains(i) {
			continue
		}
		switch pattern[i] {
		case '*':
			out.add(i)
		case '?':
			out.add(i + 1)
		case c:
			out.add(i + 1)
		}
	}
	return out
}

// hasWildcard reports whether the pattern contains glob metacharacters.
func hasWildcard(pattern string) bool {
	for k := 0; k < len(pattern); k++ {
		if pattern[k] == '*' || pattern[k] == '?' {
			return true
		}
	}
	return false
}

// validatePattern rejects empty patterns and characters outside the
// action/ARN alphabet.
func validatePattern(pattern string) error {
	if pattern == "" {
		return &InvalidPatternError{Pattern: pattern, Reason: "empty pattern"}
	}
	for k := 0; k < len(pattern); k++ {
		if !isPatternByte(pattern[k]) {
			return &InvalidPatternError{
				Pattern: pattern,
				Reason:  "character outside the action/ARN alphabet",
			}
		}
	}
	return nil
}

func isPatternByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case ':', '/', '-', '_', '.', '+', '=', ',', '@', '$', '{', '}', '*', '?':
		return true
	}
	return false
}
