package config

import (
	"os"
	"strings"
	"testing"
)

// FuzzLoadTOML feeds random-ish values into a tiny TOML and ensures the
// loader does not panic.
func FuzzLoadTOML(f *testing.F) {
	f.Add("@every 30s", "info", "text", "sqlite://x.db")
	f.Add("", "", "", "")
	f.Add("* * * * *", "debug", "json", "memory://")

	f.Fuzz(func(t *testing.T, schedule, level, format, sink string) {
		clean := func(s string) string {
			return strings.Map(func(r rune) rune {
				if r == '"' || r == '\\' || r == '\n' || r == '\r' {
					return -1
				}
				return r
			}, s)
		}
		b := strings.Builder{}
		b.WriteString("[client]\nflush_schedule = \"" + clean(schedule) + "\"\n")
		b.WriteString("sink = \"" + clean(sink) + "\"\n")
		b.WriteString("[log]\nlevel = \"" + clean(level) + "\"\nformat = \"" + clean(format) + "\"\n")

		tmp := t.TempDir() + "/fuzz.toml"
		if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
			t.Skip()
		}
		_, _ = Load(tmp) // must not panic
	})
}
