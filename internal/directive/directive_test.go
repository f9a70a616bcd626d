package directive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan(t *testing.T) {
	src := "a {! x = 1 !}\n  {~ x ~} \\{= no =\\} {= x =}"

	got := Scan(src)
	require.Len(t, got, 3)

	assert.Equal(t, Exec, got[0].Kind)
	assert.Equal(t, " x = 1 ", got[0].Code)
	assert.False(t, got[0].HasIndent)
	assert.Equal(t, 1, got[0].Line)
	assert.Equal(t, "{! x = 1 !}", src[got[0].Start:got[0].End])

	assert.Equal(t, ReprEval, got[1].Kind)
	assert.True(t, got[1].HasIndent)
	assert.Equal(t, "  ", got[1].Indent)
	assert.Equal(t, 2, got[1].Line)
	assert.Equal(t, "\n  {~ x ~}", src[got[1].Start:got[1].End])

	assert.Equal(t, StrEval, got[2].Kind)
}

func TestScan_EscapedClosingMarkerInsideBody(t *testing.T) {
	got := Scan(`{= "a\=}b" =}`)
	require.Len(t, got, 1)
	assert.Equal(t, ` "a=}b" `, got[0].Code)
}

func TestDeescape(t *testing.T) {
	assert.Equal(t, "{= x =} {! !} ~", Deescape(`\{= x =\} \{! \!\} \~`))
	assert.Equal(t, `\n stays`, Deescape(`\n stays`))
}

func TestDedent(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		width int
		want  string
	}{
		{name: "single line trimmed", code: "  x = 1  ", width: 4, want: "x = 1"},
		{name: "first line left-trimmed", code: " if True:\n      y = 1\n  ", width: 2, want: "if True:\n    y = 1\n"},
		{name: "never removes more than width", code: "a = 1\n        b = 2", width: 2, want: "a = 1\n      b = 2"},
		{name: "stops at non-whitespace", code: "a = 1\n b = 2", width: 4, want: "a = 1\nb = 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dedent(tt.code, tt.width))
		})
	}
}

func TestIndent(t *testing.T) {
	assert.Equal(t, "a\n  b\n  ", indent("a\nb\n", "  "))
	assert.Equal(t, "single", indent("single", "    "))
	assert.Equal(t, "a\nb", indent("a\nb", ""))
}

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "{! ... !}", Exec.String())
	assert.Equal(t, "{~ ... ~}", ReprEval.String())
	assert.Equal(t, "{= ... =}", StrEval.String())
	assert.Equal(t, "str", StrEval.Name())
	assert.Equal(t, "use-empty", UseEmpty.String())
	assert.Equal(t, "fail-fast", FailFast.String())
}
