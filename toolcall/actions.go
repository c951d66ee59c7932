package toolcall

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hupe1980/roundtable/core"
)

const maxSearchHits = 50

func fileActions(root string) []Action {
	ws := &workspace{root: root}
	return []Action{
		&writeFileAction{ws: ws},
		&readFileAction{ws: ws},
		&listDirectoryAction{ws: ws},
		&createDirectoryAction{ws: ws},
		&searchFilesAction{ws: ws},
	}
}

// workspace confines file actions to a single directory. Paths are cleaned
// and checked against the root before any filesystem call.
type workspace struct {
	root string
}

// resolve maps a request path onto the workspace, rejecting absolute paths
// and traversal out of the root.
func (w *workspace) resolve(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute paths are not allowed: %s", rel)
	}
	cleaned := filepath.Clean(rel)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the workspace: %s", rel)
	}
	return filepath.Join(w.root, cleaned), nil
}

func failure(format string, args ...any) Outcome {
	return Outcome{Success: false, Error: fmt.Sprintf(format, args...)}
}

func stringParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

type writeFileAction struct {
	ws *workspace
}

func (a *writeFileAction) Name() string { return "write_file" }

func (a *writeFileAction) Description() string {
	return "Write content to a file in the shared workspace, creating parent directories as needed."
}

func (a *writeFileAction) Schema() core.ToolSchema {
	return core.ToolSchema{
		Name:        a.Name(),
		Description: a.Description(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string", "description": "Workspace-relative file path."},
				"content": map[string]any{"type": "string", "description": "Full file content to write."},
			},
			"required": []string{"path", "content"},
		},
	}
}

func (a *writeFileAction) Execute(_ context.Context, params map[string]any) Outcome {
	path := stringParam(params, "path")
	content, ok := params["content"].(string)
	if !ok {
		return failure("content is required")
	}

	full, err := a.ws.resolve(path)
	if err != nil {
		return failure("%v", err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return failure("create parent directory: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return failure("write %s: %v", path, err)
	}
	return Outcome{
		Success: true,
		Details: map[string]any{"path": path, "bytes": len(content)},
	}
}

type readFileAction struct {
	ws *workspace
}

func (a *readFileAction) Name() string { return "read_file" }

func (a *readFileAction) Description() string {
	return "Read the content of a file in the shared workspace."
}

func (a *readFileAction) Schema() core.ToolSchema {
	return core.ToolSchema{
		Name:        a.Name(),
		Description: a.Description(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Workspace-relative file path."},
			},
			"required": []string{"path"},
		},
	}
}

func (a *readFileAction) Execute(_ context.Context, params map[string]any) Outcome {
	path := stringParam(params, "path")
	full, err := a.ws.resolve(path)
	if err != nil {
		return failure("%v", err)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return failure("read %s: %v", path, err)
	}
	return Outcome{
		Success: true,
		Details: map[string]any{"path": path, "content": string(data)},
	}
}

type listDirectoryAction struct {
	ws *workspace
}

func (a *listDirectoryAction) Name() string { return "list_directory" }

func (a *listDirectoryAction) Description() string {
	return "List the entries of a directory in the shared workspace."
}

func (a *listDirectoryAction) Schema() core.ToolSchema {
	return core.ToolSchema{
		Name:        a.Name(),
		Description: a.Description(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Workspace-relative directory path. Defaults to the workspace root."},
			},
		},
	}
}

func (a *listDirectoryAction) Execute(_ context.Context, params map[string]any) Outcome {
	path := stringParam(params, "path")
	if path == "" {
		path = "."
	}
	full, err := a.ws.resolve(path)
	if err != nil {
		return failure("%v", err)
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return failure("list %s: %v", path, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return Outcome{
		Success: true,
		Details: map[string]any{"path": path, "entries": names},
	}
}

type createDirectoryAction struct {
	ws *workspace
}

func (a *createDirectoryAction) Name() string { return "create_directory" }

func (a *createDirectoryAction) Description() string {
	return "Create a directory (including parents) in the shared workspace."
}

func (a *createDirectoryAction) Schema() core.ToolSchema {
	return core.ToolSchema{
		Name:        a.Name(),
		Description: a.Description(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Workspace-relative directory path."},
			},
			"required": []string{"path"},
		},
	}
}

func (a *createDirectoryAction) Execute(_ context.Context, params map[string]any) Outcome {
	path := stringParam(params, "path")
	full, err := a.ws.resolve(path)
	if err != nil {
		return failure("%v", err)
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return failure("create %s: %v", path, err)
	}
	return Outcome{
		Success: true,
		Details: map[string]any{"path": path},
	}
}

type searchFilesAction struct {
	ws *workspace
}

func (a *searchFilesAction) Name() string { return "search_files" }

func (a *searchFilesAction) Description() string {
	return "Search workspace files for lines containing a query string."
}

func (a *searchFilesAction) Schema() core.ToolSchema {
	return core.ToolSchema{
		Name:        a.Name(),
		Description: a.Description(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Case-insensitive substring to look for."},
				"path":  map[string]any{"type": "string", "description": "Workspace-relative directory to search. Defaults to the workspace root."},
			},
			"required": []string{"query"},
		},
	}
}

func (a *searchFilesAction) Execute(_ context.Context, params map[string]any) Outcome {
	query := stringParam(params, "query")
	if query == "" {
		return failure("query is required")
	}
	path := stringParam(params, "path")
	if path == "" {
		path = "."
	}
	full, err := a.ws.resolve(path)
	if err != nil {
		return failure("%v", err)
	}

	needle := strings.ToLower(query)
	var hits []map[string]any
	walkErr := filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if len(hits) >= maxSearchHits {
			return filepath.SkipAll
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(a.ws.root, p)
		if err != nil {
			rel = p
		}
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(strings.ToLower(line), needle) {
				hits = append(hits, map[string]any{
					"path": rel,
					"line": i + 1,
					"text": strings.TrimSpace(line),
				})
				if len(hits) >= maxSearchHits {
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return failure("search %s: %v", path, walkErr)
	}
	return Outcome{
		Success: true,
		Details: map[string]any{"query": query, "matches": hits, "count": len(hits)},
	}
}
