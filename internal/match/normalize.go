// Package match scores extracted test names against the analysis catalogue.
package match

// Normalizer canonicalizes a raw name before comparison. Implementations
// must be pure and idempotent.
type Normalizer func(string) string

// Normalize strips every byte outside [A-Za-z0-9] and uppercases the rest.
// "C. albicans Count " becomes "CALBICANSCOUNT".
func Normalize(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
			out = append(out, c-('a'-'A'))
		case (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'):
			out = append(out, c)
		}
	}
	return string(out)
}
