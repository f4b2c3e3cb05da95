package env

import (
	"os"
	"strings"
)

type Var map[string]string

// Env expands ${VAR} references in config strings. Only the braced form is
// recognised, so a bare '$' inside a password or DSN stays literal.
type Env struct {
	Var Var // overrides applied on top of the OS environment
	env Var // cached base from OS environment
}

func New() *Env {
	return &Env{
		Var: make(Var),
	}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	base := make(Var)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			base[kv[:i]] = kv[i+1:]
		}
	}
	e.env = base
}

// Set sets an override K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

func (e *Env) lookup(k string) (string, bool) {
	if v, ok := e.Var[k]; ok {
		return v, true
	}
	if e.env == nil {
		e.FromOS()
	}
	v, ok := e.env[k]
	return v, ok
}

// Expand replaces every ${NAME} in s. Unknown names expand to "" and an
// unterminated "${" is kept as is. Expansion is not recursive.
func (e *Env) Expand(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		v, _ := e.lookup(s[i+2 : i+2+j])
		b.WriteString(v)
		s = s[i+2+j+1:]
	}
}

// Missing lists the ${NAME} references in s that resolve to nothing.
func (e *Env) Missing(s string) []string {
	var out []string
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			return out
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			return out
		}
		name := s[i+2 : i+2+j]
		if _, ok := e.lookup(name); !ok {
			out = append(out, name)
		}
		s = s[i+2+j+1:]
	}
}
