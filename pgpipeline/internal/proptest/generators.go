package proptest

import "strings"

// =============================================================================
// Range and String Generators
// =============================================================================

// IntRange returns a random int in [min, max] (inclusive).
// Panics if min > max.
func (g *Generator) IntRange(min, max int) int {
	if min > max {
		panic("proptest: IntRange min > max")
	}
	return min + g.Intn(max-min+1)
}

const stringAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 _-"

// String generates a random string of length [0, maxLen] drawn from a
// printable ASCII alphabet.
func (g *Generator) String(maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	length := g.Intn(maxLen + 1)
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(stringAlphabet[g.Intn(len(stringAlphabet))])
	}
	return b.String()
}

const identifierAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_"
const identifierStartAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ_"

// Identifier generates a random SQL-identifier-shaped string of length
// [1, maxLen]: starts with a letter or underscore, followed by
// letters/digits/underscores.
func (g *Generator) Identifier(maxLen int) string {
	if maxLen < 1 {
		maxLen = 1
	}
	length := g.IntRange(1, maxLen)
	var b strings.Builder
	b.Grow(length)
	b.WriteByte(identifierStartAlphabet[g.Intn(len(identifierStartAlphabet))])
	for i := 1; i < length; i++ {
		b.WriteByte(identifierAlphabet[g.Intn(len(identifierAlphabet))])
	}
	return b.String()
}

// IdentifierLower is Identifier lowercased, matching Postgres's default
// unquoted-identifier folding.
func (g *Generator) IdentifierLower(maxLen int) string {
	return strings.ToLower(g.Identifier(maxLen))
}

// edgeCaseStrings are values that tend to break naive string handling:
// empty, whitespace-only, quote/escape characters, and SQL metacharacters.
var edgeCaseStrings = []string{
	"",
	" ",
	"\t",
	"\n",
	`"`,
	`""`,
	"'",
	"''",
	"`",
	"\\",
	";",
	"--",
	"/*",
	"*/",
	"; DROP TABLE users;",
	"NULL",
	"\x00",
	strings.Repeat("a", 256),
}

// EdgeCaseString returns a random value from a fixed pool of strings known
// to stress quoting/escaping code.
func (g *Generator) EdgeCaseString() string {
	return edgeCaseStrings[g.Intn(len(edgeCaseStrings))]
}

var edgeCaseIdentifiers = []string{
	"a",
	"_",
	"__",
	"select",
	"table",
	"Order",
	"123abc",
	strings.Repeat("x", 63),
	strings.Repeat("x", 64),
}

// EdgeCaseIdentifier returns a random value from a fixed pool of
// identifier-shaped strings known to stress identifier-handling code
// (reserved words, case folding, length limits).
func (g *Generator) EdgeCaseIdentifier() string {
	return edgeCaseIdentifiers[g.Intn(len(edgeCaseIdentifiers))]
}
