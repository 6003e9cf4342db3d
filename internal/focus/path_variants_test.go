package focus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCwdVariants_EmptyCwdYieldsNil(t *testing.T) {
	assert.Nil(t, normalizeCwdVariants(""))
}

func TestNormalizeCwdVariants_DeduplicatesEquivalentForms(t *testing.T) {
	variants := normalizeCwdVariants("project")
	assert.Equal(t, []string{"project"}, variants, "a bare name has no slash/backslash distinction")
}

func TestNormalizeCwdVariants_IncludesBackslashForwardAndBase(t *testing.T) {
	variants := normalizeCwdVariants("C:/Users/dev/My-Project")
	assert.Contains(t, variants, `c:\users\dev\my-project`)
	assert.Contains(t, variants, "c:/users/dev/my-project")
	assert.Contains(t, variants, "my-project")
}

func TestTitleContainsAny(t *testing.T) {
	assert.True(t, titleContainsAny("claude - my-project - windows terminal", []string{"my-project"}))
	assert.False(t, titleContainsAny("claude - windows terminal", []string{"my-project"}))
	assert.False(t, titleContainsAny("anything", nil))
}

func TestIsTerminalProcess(t *testing.T) {
	assert.True(t, isTerminalProcess("windowsterminal.exe"))
	assert.False(t, isTerminalProcess("explorer.exe"))
}

func TestIsShellChild(t *testing.T) {
	assert.True(t, isShellChild("powershell.exe"))
	assert.False(t, isShellChild("notepad.exe"))
}
