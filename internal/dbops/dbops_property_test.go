package dbops_test

import (
	"strings"
	"testing"

	"github.com/shipq/pgpipeline/internal/dbops"
	"github.com/shipq/pgpipeline/proptest"
)

// Property: QuoteIdentifier should always produce valid SQL identifiers
// that prevent SQL injection for any input string.
func TestProperty_QuoteIdentifierPreventsInjection(t *testing.T) {
	proptest.QuickCheck(t, "quote identifier prevents injection", func(g *proptest.Generator) bool {
		input := proptest.OneOfFunc(g,
			func(g *proptest.Generator) string { return g.EdgeCaseString() },
			func(g *proptest.Generator) string { return g.String(100) },
			func(g *proptest.Generator) string { return g.EdgeCaseIdentifier() },
		)

		quoted := dbops.QuoteIdentifier(input)

		if quoted == "" {
			t.Logf("QuoteIdentifier returned empty for input %q", input)
			return false
		}
		if !strings.HasPrefix(quoted, `"`) || !strings.HasSuffix(quoted, `"`) {
			t.Logf("quoted identifier not wrapped in double quotes: %q", quoted)
			return false
		}
		inner := quoted[1 : len(quoted)-1]
		if strings.Count(inner, `"`)%2 != 0 {
			t.Logf("quoted identifier has odd internal quote count: %q", quoted)
			return false
		}
		return true
	})
}

// Property: database names derived from identifiers should produce usable,
// longer-than-input quoted SQL.
func TestProperty_DatabaseNameQuoting(t *testing.T) {
	proptest.QuickCheck(t, "database name quoting adds at least the two quote chars", func(g *proptest.Generator) bool {
		projectName := g.IdentifierLower(30)
		if projectName == "" {
			return true
		}
		quoted := dbops.QuoteIdentifier(projectName)
		if quoted == "" {
			return false
		}
		return len(quoted) >= len(projectName)+2
	})
}

// Property: SQL generation for drop/create should be deterministic.
func TestProperty_DropCreateSQLDeterministic(t *testing.T) {
	proptest.QuickCheck(t, "drop/create SQL is deterministic", func(g *proptest.Generator) bool {
		dbName := g.IdentifierLower(20)
		if dbName == "" {
			return true
		}

		if dbops.GenerateDropSQL(dbName) != dbops.GenerateDropSQL(dbName) {
			t.Logf("drop SQL not deterministic for %q", dbName)
			return false
		}
		if dbops.GenerateCreateSQL(dbName) != dbops.GenerateCreateSQL(dbName) {
			t.Logf("create SQL not deterministic for %q", dbName)
			return false
		}
		return true
	})
}

// Property: drop SQL should contain DROP DATABASE and IF EXISTS.
func TestProperty_DropSQLContainsExpectedKeywords(t *testing.T) {
	proptest.QuickCheck(t, "drop SQL contains expected keywords", func(g *proptest.Generator) bool {
		dbName := g.IdentifierLower(20)
		if dbName == "" {
			return true
		}

		sql := strings.ToUpper(dbops.GenerateDropSQL(dbName))
		if !strings.Contains(sql, "DROP DATABASE") {
			t.Logf("drop SQL missing DROP DATABASE: %q", sql)
			return false
		}
		if !strings.Contains(sql, "IF EXISTS") {
			t.Logf("drop SQL missing IF EXISTS: %q", sql)
			return false
		}
		return true
	})
}

// Property: create SQL should contain CREATE DATABASE.
func TestProperty_CreateSQLContainsExpectedKeywords(t *testing.T) {
	proptest.QuickCheck(t, "create SQL contains expected keywords", func(g *proptest.Generator) bool {
		dbName := g.IdentifierLower(20)
		if dbName == "" {
			return true
		}
		sql := strings.ToUpper(dbops.GenerateCreateSQL(dbName))
		return strings.Contains(sql, "CREATE DATABASE")
	})
}

// Property: quoting should never panic and should always wrap in double
// quotes, even for adversarial input.
func TestProperty_QuoteIdentifierHandlesEdgeCases(t *testing.T) {
	edgeCases := []string{
		"",
		" ",
		"normal_name",
		"with space",
		`with"quote`,
		"with'apostrophe",
		"with\nnewline",
		"with\ttab",
		"; DROP TABLE users;",
		"--comment",
		"/* comment */",
	}

	for _, input := range edgeCases {
		quoted := dbops.QuoteIdentifier(input)
		if quoted == "" {
			t.Errorf("QuoteIdentifier(%q) returned empty", input)
			continue
		}
		if quoted[0] != '"' || quoted[len(quoted)-1] != '"' {
			t.Errorf("QuoteIdentifier(%q) = %q, not wrapped in double quotes", input, quoted)
		}
	}
}
