package toolcall

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	engine := NewEngine(func(o *Options) {
		o.Root = root
	})
	return engine, root
}

func TestEngineExecuteWriteFile(t *testing.T) {
	engine, root := newTestEngine(t)

	text := `Saving the plan now. <TOOL_CALL tool="write_file">{"path":"plan.md","content":"step one"}</TOOL_CALL> All set.`
	annotated, results := engine.Execute(context.Background(), text, nil)

	require.Len(t, results, 1)
	assert.Equal(t, "write_file", results[0].Action)
	assert.True(t, results[0].Success)

	data, err := os.ReadFile(filepath.Join(root, "plan.md"))
	require.NoError(t, err)
	assert.Equal(t, "step one", string(data))

	assert.Equal(t, "Saving the plan now. [Executed: write_file - Success (plan.md)] All set.", annotated)
}

func TestEngineExecuteEnvelopeForm(t *testing.T) {
	engine, root := newTestEngine(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("remember this"), 0o644))

	text := `<TOOL_CALL>{"tool":"read_file","params":{"path":"notes.txt"}}</TOOL_CALL>`
	_, results := engine.Execute(context.Background(), text, nil)

	require.Len(t, results, 1)
	assert.Equal(t, "read_file", results[0].Action)
	assert.True(t, results[0].Success)
	assert.Equal(t, "remember this", results[0].Details["content"])
}

func TestEngineExecuteEnvelopeFlatParams(t *testing.T) {
	engine, root := newTestEngine(t)

	// Some models drop the params wrapper and inline the arguments.
	text := `<TOOL_CALL>{"tool":"write_file","path":"flat.txt","content":"ok"}</TOOL_CALL>`
	_, results := engine.Execute(context.Background(), text, nil)

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	data, err := os.ReadFile(filepath.Join(root, "flat.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}

func TestEngineRepairsDamagedContent(t *testing.T) {
	engine, root := newTestEngine(t)

	text := "<TOOL_CALL tool=\"write_file\">{\"path\":\"main.go\",\"content\":\"fmt.Println(\"hello\")\nreturn\"}</TOOL_CALL>"
	_, results := engine.Execute(context.Background(), text, nil)

	require.Len(t, results, 1)
	require.True(t, results[0].Success, "error: %s", results[0].Error)

	data, err := os.ReadFile(filepath.Join(root, "main.go"))
	require.NoError(t, err)
	assert.Equal(t, "fmt.Println(\"hello\")\nreturn", string(data))
}

func TestEngineRepairsDamagedContentWithTrailingField(t *testing.T) {
	engine, root := newTestEngine(t)

	text := `<TOOL_CALL tool="write_file">{"path":"a.txt","content":"say "hi" now","mode":"x"}</TOOL_CALL>`
	_, results := engine.Execute(context.Background(), text, nil)

	require.Len(t, results, 1)
	require.True(t, results[0].Success, "error: %s", results[0].Error)

	data, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, `say "hi" now`, string(data), "fields after content must not leak into the file")
}

func TestEngineDeniedActionNeverRuns(t *testing.T) {
	engine, root := newTestEngine(t)

	text := `<TOOL_CALL tool="write_file">{"path":"forbidden.txt","content":"nope"}</TOOL_CALL>`
	annotated, results := engine.Execute(context.Background(), text, []string{"read_file"})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "access denied")
	assert.Contains(t, results[0].Error, "read_file")

	_, err := os.Stat(filepath.Join(root, "forbidden.txt"))
	assert.True(t, os.IsNotExist(err), "denied action must not touch the filesystem")
	assert.Contains(t, annotated, "[Executed: write_file - Error: access denied")
}

func TestEngineEmptyAllowListDeniesEverything(t *testing.T) {
	engine, _ := newTestEngine(t)

	text := `<TOOL_CALL tool="read_file">{"path":"x"}</TOOL_CALL>`
	_, results := engine.Execute(context.Background(), text, []string{})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "access denied")
}

func TestEngineUnknownAction(t *testing.T) {
	engine, _ := newTestEngine(t)

	text := `<TOOL_CALL tool="launch_rockets">{"target":"moon"}</TOOL_CALL>`
	_, results := engine.Execute(context.Background(), text, nil)

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, `unknown action "launch_rockets"`)
}

func TestEngineMalformedPayloadDoesNotBlockSiblings(t *testing.T) {
	engine, root := newTestEngine(t)

	text := `<TOOL_CALL tool="write_file">{"path": broken}</TOOL_CALL> and <TOOL_CALL tool="write_file">{"path":"ok.txt","content":"fine"}</TOOL_CALL>`
	_, results := engine.Execute(context.Background(), text, nil)

	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.True(t, results[1].Success)

	data, err := os.ReadFile(filepath.Join(root, "ok.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fine", string(data))
}

func TestEngineTruncatedRequest(t *testing.T) {
	engine, _ := newTestEngine(t)

	text := `mid thought <TOOL_CALL tool="write_file">{"path":"a.txt","content":"cut off`
	annotated, results := engine.Execute(context.Background(), text, nil)

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "unterminated")
	assert.Equal(t, "mid thought [Executed: write_file - Error: unterminated parameter object]", annotated)
}

func TestEngineNoRequestsLeavesTextUntouched(t *testing.T) {
	engine, _ := newTestEngine(t)

	text := "just prose, nothing to run"
	annotated, results := engine.Execute(context.Background(), text, nil)

	assert.Equal(t, text, annotated)
	assert.Nil(t, results)
}

func TestEnginePreservesSurroundingTextExactly(t *testing.T) {
	engine, _ := newTestEngine(t)

	prefix := "Prefix with  double spaces and\nnewlines\t"
	suffix := "\n\nsuffix } with { braces"
	text := prefix + `<TOOL_CALL tool="create_directory">{"path":"sub"}</TOOL_CALL>` + suffix
	annotated, results := engine.Execute(context.Background(), text, nil)

	require.Len(t, results, 1)
	require.True(t, results[0].Success)
	assert.Equal(t, prefix+"[Executed: create_directory - Success (sub)]"+suffix, annotated)
}

func TestEngineAllowedFilters(t *testing.T) {
	engine, _ := newTestEngine(t)

	all := engine.Allowed(nil)
	assert.Len(t, all, 5)

	some := engine.Allowed([]string{"read_file", "write_file"})
	require.Len(t, some, 2)
	assert.Equal(t, "read_file", some[0].Name())
	assert.Equal(t, "write_file", some[1].Name())

	assert.Empty(t, engine.Allowed([]string{}))
}

func TestWorkspaceSandbox(t *testing.T) {
	engine, root := newTestEngine(t)

	for _, path := range []string{"../escape.txt", "/etc/passwd", "a/../../escape.txt"} {
		text := `<TOOL_CALL tool="write_file">{"path":"` + path + `","content":"x"}</TOOL_CALL>`
		_, results := engine.Execute(context.Background(), text, nil)
		require.Len(t, results, 1)
		assert.False(t, results[0].Success, "path %q must be rejected", path)
	}

	_, err := os.Stat(filepath.Join(filepath.Dir(root), "escape.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestListDirectoryAction(t *testing.T) {
	engine, root := newTestEngine(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.md"), []byte("x"), 0o644))

	text := `<TOOL_CALL tool="list_directory">{}</TOOL_CALL>`
	_, results := engine.Execute(context.Background(), text, nil)

	require.Len(t, results, 1)
	require.True(t, results[0].Success)
	assert.Equal(t, []string{"docs/", "readme.md"}, results[0].Details["entries"])
}

func TestSearchFilesAction(t *testing.T) {
	engine, root := newTestEngine(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("alpha\nneedle here\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("nothing\n"), 0o644))

	text := `<TOOL_CALL tool="search_files">{"query":"NEEDLE"}</TOOL_CALL>`
	_, results := engine.Execute(context.Background(), text, nil)

	require.Len(t, results, 1)
	require.True(t, results[0].Success)
	assert.Equal(t, 1, results[0].Details["count"])

	hits, ok := results[0].Details["matches"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, hits, 1)
	assert.Equal(t, "a.txt", hits[0]["path"])
	assert.Equal(t, 2, hits[0]["line"])
	assert.Equal(t, "needle here", hits[0]["text"])
}
