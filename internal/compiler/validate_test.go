package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codes(findings []ValidationError) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.Code
	}
	return out
}

func TestValidate_Clean(t *testing.T) {
	prog, err := CompileString(greenhouse, "greenhouse.cue")
	require.NoError(t, err)

	findings := Validate(prog)
	assert.Empty(t, findings)
	assert.False(t, HasErrors(findings))
}

func TestValidate_Nil(t *testing.T) {
	assert.Nil(t, Validate(nil))
}

func TestValidate_DuplicateAcrossTrees(t *testing.T) {
	prog, err := CompileString(`
tree: one: children: [{task: "shared", when: {always: {}}, do: [{log: "a"}]}]
tree: two: children: [{task: "shared", when: {always: {}}, do: [{log: "b"}]}]
`, "dup.cue")
	require.NoError(t, err)

	findings := Validate(prog)
	require.Len(t, findings, 1)
	assert.Equal(t, ErrDuplicateName, findings[0].Code)
	assert.Equal(t, "two/shared", findings[0].Field)
	assert.Contains(t, findings[0].Message, "one/shared")
	assert.True(t, HasErrors(findings))
}

func TestValidate_ExitNameCollides(t *testing.T) {
	prog, err := CompileString(`
tree: main: children: [
	{context: "c", when: {state: {key: "k", equals: 1}}, on_exit: {name: "t", do: [{log: "x"}]}},
	{task: "t", when: {always: {}}, do: [{log: "y"}]},
]
`, "exit.cue")
	require.NoError(t, err)

	assert.Equal(t, []string{ErrDuplicateName}, codes(Validate(prog)))
}

func TestValidate_PinChecks(t *testing.T) {
	prog, err := CompileString(`
tree: main: children: [
	{task: "a", when: {pin: {id: 4}}, do: [{pin: {id: 9, state: true}}]},
	{task: "b", when: {pin: {id: 4, output: true}}, do: [{pin: {id: 4, state: false}}]},
	{task: "c", when: {pin: {id: 6, output: true}}, do: [{pin: {id: 6, state: true}}]},
]
`, "pins.cue")
	require.NoError(t, err)

	findings := Validate(prog)
	assert.Equal(t, []string{ErrPinDirection, ErrUndeclaredOutput}, codes(findings))
	assert.Equal(t, "pin.4", findings[0].Field)
	assert.Equal(t, "main/a.do[0]", findings[1].Field)
}

func TestValidate_ReservedKey(t *testing.T) {
	prog, err := CompileString(`
tree: main: children: [{task: "a", when: {always: {}}, do: [{set: {key: "a_executed", value: 0}}]}]
`, "reserved.cue")
	require.NoError(t, err)

	assert.Equal(t, []string{ErrReservedKey}, codes(Validate(prog)))
}

func TestValidate_Warnings(t *testing.T) {
	prog, err := CompileString(`
tree: main: children: [
	{task: "idle", do: [{log: "never"}]},
	{context: "forever", when: {always: {}}},
]
`, "warn.cue")
	require.NoError(t, err)

	findings := Validate(prog)
	assert.Equal(t, []string{WarnTaskNeverFires, WarnContextNeverExit}, codes(findings))
	assert.Equal(t, SeverityWarning, findings[0].Severity)
	assert.False(t, HasErrors(findings))
	assert.Greater(t, findings[0].Line, 0)
}

func TestValidationError_Format(t *testing.T) {
	e := ValidationError{Field: "main/a", Message: "bad", Code: "E201"}
	assert.Equal(t, "[E201] main/a: bad", e.Error())

	e.Line = 7
	assert.Equal(t, "[E201] line 7: main/a: bad", e.Error())
}
