package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func scanTypes(t *testing.T, src string) []TokenType {
	t.Helper()
	s := NewScanner("test.bas", src)
	toks := s.ScanTokens()
	require.Empty(t, s.Errors())
	var kinds []TokenType
	for _, tok := range toks {
		if tok.Type == TokenEOL {
			continue
		}
		kinds = append(kinds, tok.Type)
	}
	return kinds
}

func TestSuffixedIdentifiers(t *testing.T) {
	s := NewScanner("test.bas", "count% total& ratio! precise# name$")
	toks := s.ScanTokens()
	require.Empty(t, s.Errors())
	require.Len(t, toks, 6) // 5 idents + EOF
	expectSuffix := []byte{'%', '&', '!', '#', '$'}
	for i, suf := range expectSuffix {
		require.Equal(t, TokenIdent, toks[i].Type)
		require.Equal(t, suf, toks[i].Suffix)
	}
}

func TestLiteralBases(t *testing.T) {
	s := NewScanner("test.bas", "&HFF &O17 &B1010")
	toks := s.ScanTokens()
	require.Empty(t, s.Errors())
	require.Len(t, toks, 4)
	for i := 0; i < 3; i++ {
		require.Equal(t, TokenInt32, toks[i].Type)
	}
}

func TestNumericSuffixesPickMachineType(t *testing.T) {
	s := NewScanner("test.bas", "1 1.5 1.5! 1.5# 123456789012&")
	toks := s.ScanTokens()
	require.Empty(t, s.Errors())
	require.Equal(t, TokenInt32, toks[0].Type)
	require.Equal(t, TokenDouble, toks[1].Type)
	require.Equal(t, TokenSingle, toks[2].Type)
	require.Equal(t, TokenDouble, toks[3].Type)
	require.Equal(t, TokenInt64, toks[4].Type)
}

func TestColonIsEndOfStatement(t *testing.T) {
	kinds := scanTypes(t, "PRINT \"hi\" : PRINT \"bye\"")
	require.Contains(t, kinds, TokenColon)
	require.Contains(t, kinds, TokenPrint)
}

func TestDoubledQuoteEscape(t *testing.T) {
	s := NewScanner("test.bas", `"say ""hi"""`)
	toks := s.ScanTokens()
	require.Empty(t, s.Errors())
	require.Equal(t, `say "hi"`, toks[0].Lexeme)
}

func TestUnterminatedStringIsLexError(t *testing.T) {
	s := NewScanner("test.bas", `"never closed`)
	s.ScanTokens()
	require.NotEmpty(t, s.Errors())
}

func TestRemAndApostropheComments(t *testing.T) {
	kinds := scanTypes(t, "REM this is ignored\nPRINT 1 ' trailing comment")
	require.Equal(t, []TokenType{TokenPrint, TokenInt32, TokenEOF}, kinds)
}

func TestKeywordsAreCaseInsensitive(t *testing.T) {
	kinds := scanTypes(t, "if then end if\nIF THEN END IF")
	require.Equal(t, kinds[:4], kinds[4:8])
}
