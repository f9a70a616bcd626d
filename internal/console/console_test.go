package console

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsole_PlainOutput(t *testing.T) {
	var out, errOut bytes.Buffer
	c := New(&out, &errOut, WithColor(false))

	c.Published("index.html")
	c.Removed("old.html")
	c.Skipped("_draft.md")
	c.Error("%s: %v", "page.md", "boom")
	c.Summary(1, 1, 1, 1)

	assert.Equal(t, "[published] index.html\n[removed] old.html\n[skipped] _draft.md\n"+
		"1 files published, 1 files skipped, 1 files removed; 1 errors\n", out.String())
	assert.Equal(t, "error: page.md: boom\n", errOut.String())
}

func TestConsole_HideSkipped(t *testing.T) {
	var out bytes.Buffer
	c := New(&out, &out, WithColor(false), WithHideSkipped(true))

	c.Skipped("_draft.md")
	assert.Empty(t, out.String())
}

func TestConsole_ColorTags(t *testing.T) {
	var out bytes.Buffer
	c := New(&out, &out, WithColor(true))

	c.Published("index.html")
	assert.Contains(t, out.String(), "\x1b[")
	assert.Contains(t, out.String(), "[published]")
}

func TestConsole_Detail(t *testing.T) {
	var errOut bytes.Buffer
	c := New(&bytes.Buffer{}, &errOut, WithColor(false))

	c.Detail("Traceback\n  line 1\n\n")
	c.Detail("")
	assert.Equal(t, "Traceback\n  line 1\n", errOut.String())
}
