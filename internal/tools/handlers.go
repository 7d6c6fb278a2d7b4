package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
	"github.com/bigwolfeman/document-mcp/internal/index"
	"github.com/bigwolfeman/document-mcp/internal/search"
	"github.com/bigwolfeman/document-mcp/internal/vault"
)

// LibrarianRunner is the minimal surface delegate_librarian needs. Kept as
// an interface here (rather than importing internal/librarian directly)
// because internal/librarian imports internal/oracle, which imports this
// package — a direct import would cycle.
type LibrarianRunner interface {
	Summarise(ctx context.Context, tenant, task string, sourcePaths []string, maxTokens int, forceRefresh bool) (string, error)
	CreateIndex(ctx context.Context, tenant, folder, task string) (string, error)
}

// Deps bundles the core components every built-in handler calls into.
type Deps struct {
	Vault     *vault.Store
	Indexer   *index.Indexer
	Search    *search.Engine
	DB        *index.DB
	Librarian LibrarianRunner
	External  *ExternalCollaborators
}

// RegisterCoreTools wires every handler in spec §4.8's table into d.
func RegisterCoreTools(d *Dispatcher, deps *Deps, vaultIOTimeout, codeSearchTimeout, webFetchTimeout, librarianTimeout time.Duration) {
	d.Register(&Tool{
		Name:        "vault_read",
		Description: "Read a note from the vault by path.",
		AgentScope:  []string{"oracle", "librarian"},
		Timeout:     vaultIOTimeout,
		Schema: schema(props{
			"path": {"type": "string", "description": "relative note path, e.g. notes/intro.md"},
		}, "path"),
		Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			p, _ := args["path"].(string)
			note, err := deps.Vault.Read(tenant, p)
			if err != nil {
				return nil, friendlyErr(err)
			}
			return map[string]any{
				"path": note.Path, "title": note.Title, "content": note.Body,
				"size_bytes": note.SizeBytes, "updated": note.Updated,
			}, nil
		},
	})

	d.Register(&Tool{
		Name:        "vault_write",
		Description: "Write (create or update) a note in the vault and reindex it.",
		AgentScope:  []string{"oracle", "librarian"},
		Timeout:     vaultIOTimeout,
		Schema: schema(props{
			"path":    {"type": "string"},
			"content": {"type": "string"},
			"title":   {"type": "string"},
		}, "path", "content"),
		Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			p, _ := args["path"].(string)
			content, _ := args["content"].(string)
			title, _ := args["title"].(string)
			note, err := deps.Vault.Write(tenant, p, content, nil, title)
			if err != nil {
				return nil, friendlyErr(err)
			}
			version, err := deps.Indexer.Index(tenant, note)
			if err != nil {
				return nil, friendlyErr(err)
			}
			return map[string]any{"path": note.Path, "version": version}, nil
		},
	})

	d.Register(&Tool{
		Name:        "vault_list",
		Description: "List notes under an optional folder.",
		AgentScope:  []string{"oracle", "librarian"},
		Timeout:     vaultIOTimeout,
		Schema:      schema(props{"folder": {"type": "string"}}),
		Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			folder, _ := args["folder"].(string)
			notes, err := deps.Vault.List(tenant, folder)
			if err != nil {
				return nil, friendlyErr(err)
			}
			out := make([]map[string]any, 0, len(notes))
			for _, n := range notes {
				out = append(out, map[string]any{"path": n.Path, "title": n.Title, "last_modified": n.LastModified})
			}
			return out, nil
		},
	})

	d.Register(&Tool{
		Name:        "vault_search",
		Description: "Full-text search the vault.",
		AgentScope:  []string{"oracle", "librarian"},
		Schema:      schema(props{"query": {"type": "string"}, "limit": {"type": "integer"}}, "query"),
		Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			q, _ := args["query"].(string)
			limit := 20
			if l, ok := args["limit"].(float64); ok {
				limit = int(l)
			} else if l, ok := args["limit"].(int); ok {
				limit = l
			}
			results, err := deps.Search.Search(tenant, q, limit)
			if err != nil {
				return nil, friendlyErr(err)
			}
			out := make([]map[string]any, 0, len(results))
			for _, r := range results {
				out = append(out, map[string]any{
					"path": r.Path, "title": r.Title, "snippet": r.Snippet,
					"score": r.Score, "updated": r.Updated,
				})
			}
			return out, nil
		},
	})

	d.Register(&Tool{
		Name:        "vault_move",
		Description: "Move/rename a note, reindexing at the new path.",
		AgentScope:  []string{"librarian"},
		Timeout:     vaultIOTimeout,
		Schema:      schema(props{"old_path": {"type": "string"}, "new_path": {"type": "string"}}, "old_path", "new_path"),
		Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			oldPath, _ := args["old_path"].(string)
			newPath, _ := args["new_path"].(string)
			note, err := deps.Vault.Move(tenant, oldPath, newPath)
			if err != nil {
				return nil, friendlyErr(err)
			}
			if err := deps.Indexer.DeleteIndex(tenant, oldPath); err != nil {
				return nil, friendlyErr(err)
			}
			if _, err := deps.Indexer.Index(tenant, note); err != nil {
				return nil, friendlyErr(err)
			}
			return map[string]any{"path": note.Path}, nil
		},
	})

	d.Register(&Tool{
		Name:        "thread_push",
		Description: "Append a turn to a project thread.",
		AgentScope:  []string{"oracle", "librarian"},
		Schema: schema(props{
			"project": {"type": "string"}, "thread_id": {"type": "string"},
			"role": {"type": "string"}, "content": {"type": "string"},
		}, "project", "thread_id", "role", "content"),
		Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			project, _ := args["project"].(string)
			threadID, _ := args["thread_id"].(string)
			role, _ := args["role"].(string)
			content, _ := args["content"].(string)
			entry, err := deps.DB.ThreadPush(tenant, project, threadID, role, content)
			if err != nil {
				return nil, friendlyErr(err)
			}
			return map[string]any{"thread_id": entry.ThreadID, "seq": entry.Seq}, nil
		},
	})

	d.Register(&Tool{
		Name:        "thread_read",
		Description: "Return the last N entries of a thread in chronological order.",
		AgentScope:  []string{"oracle", "librarian"},
		Schema:      schema(props{"thread_id": {"type": "string"}, "n": {"type": "integer"}}, "thread_id"),
		Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			threadID, _ := args["thread_id"].(string)
			n := 20
			if v, ok := args["n"].(float64); ok {
				n = int(v)
			} else if v, ok := args["n"].(int); ok {
				n = v
			}
			entries, err := deps.DB.ThreadRead(tenant, threadID, n)
			if err != nil {
				return nil, friendlyErr(err)
			}
			return entriesToJSON(entries), nil
		},
	})

	d.Register(&Tool{
		Name:        "thread_seek",
		Description: "Full-text search over thread entries.",
		AgentScope:  []string{"oracle", "librarian"},
		Schema:      schema(props{"project": {"type": "string"}, "query": {"type": "string"}}, "project", "query"),
		Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			project, _ := args["project"].(string)
			q, _ := args["query"].(string)
			entries, err := deps.DB.ThreadSeek(tenant, project, q, 5)
			if err != nil {
				return nil, friendlyErr(err)
			}
			return entriesToJSON(entries), nil
		},
	})

	d.Register(&Tool{
		Name:        "thread_list",
		Description: "List active threads for a project.",
		AgentScope:  []string{"oracle", "librarian"},
		Schema:      schema(props{"project": {"type": "string"}}, "project"),
		Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			project, _ := args["project"].(string)
			threads, err := deps.DB.ThreadList(tenant, project)
			if err != nil {
				return nil, friendlyErr(err)
			}
			out := make([]map[string]any, 0, len(threads))
			for _, t := range threads {
				out = append(out, map[string]any{"thread_id": t.ThreadID, "created_at": t.CreatedAt, "last_activity": t.LastActivity})
			}
			return out, nil
		},
	})

	for name, desc := range map[string]string{
		"search_code":     "Search the external code-collaborator's index.",
		"find_definition": "Find a symbol definition via the external code collaborator.",
		"find_references": "Find symbol references via the external code collaborator.",
		"get_repo_map":    "Fetch a repository map via the external code collaborator.",
	} {
		name, desc := name, desc
		d.Register(&Tool{
			Name:        name,
			Description: desc,
			AgentScope:  []string{"oracle"},
			Timeout:     codeSearchTimeout,
			Schema:      schema(props{"query": {"type": "string"}}, "query"),
			Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
				return deps.External.CodeCollaborator(ctx, name, args)
			},
		})
	}

	d.Register(&Tool{
		Name:        "web_search",
		Description: "Search the web via the external collaborator.",
		AgentScope:  []string{"oracle"},
		Timeout:     webFetchTimeout,
		Schema:      schema(props{"query": {"type": "string"}}, "query"),
		Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			return deps.External.WebSearch(ctx, args)
		},
	})

	d.Register(&Tool{
		Name:        "web_fetch",
		Description: "Fetch a URL via the external collaborator.",
		AgentScope:  []string{"oracle"},
		Timeout:     webFetchTimeout,
		Schema:      schema(props{"url": {"type": "string"}}, "url"),
		Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			return deps.External.WebFetch(ctx, args)
		},
	})

	d.Register(&Tool{
		Name:        "delegate_librarian",
		Description: "Invoke the Librarian subagent synchronously to completion.",
		AgentScope:  []string{"oracle"},
		Timeout:     librarianTimeout,
		Schema: schema(props{
			"task":  {"type": "string"},
			"paths": {"type": "array", "items": map[string]any{"type": "string"}},
		}, "task", "paths"),
		Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			task, _ := args["task"].(string)
			var paths []string
			if raw, ok := args["paths"].([]any); ok {
				for _, p := range raw {
					if s, ok := p.(string); ok {
						paths = append(paths, s)
					}
				}
			}
			summary, err := deps.Librarian.Summarise(ctx, tenant, task, paths, 1000, false)
			if err != nil {
				return nil, friendlyErr(err)
			}
			return map[string]any{"summary": summary}, nil
		},
	})

	d.Register(&Tool{
		Name:        "vault_create_index",
		Description: "Invoke the Librarian subagent to generate a folder index note (see delegate_librarian).",
		AgentScope:  []string{"librarian"},
		Timeout:     librarianTimeout,
		Schema: schema(props{
			"folder": {"type": "string", "description": "folder to organise, e.g. notes/projects"},
			"task":   {"type": "string", "description": "optional organising instruction"},
		}, "folder"),
		Handler: func(ctx context.Context, tenant string, args map[string]any) (any, error) {
			folder, _ := args["folder"].(string)
			task, _ := args["task"].(string)
			indexPath, err := deps.Librarian.CreateIndex(ctx, tenant, folder, task)
			if err != nil {
				return nil, friendlyErr(err)
			}
			return map[string]any{"index_path": indexPath}, nil
		},
	})
}

func entriesToJSON(entries []index.ThreadEntry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"thread_id": e.ThreadID, "seq": e.Seq, "created_at": e.CreatedAt,
			"role": e.Role, "content": e.Content,
		})
	}
	return out
}

// friendlyErr translates an *apperr.E into a plain error whose message
// becomes the tool-result {"error": ...} payload (spec §4.8/§7: tool
// handler errors are never propagated as exceptions to the oracle loop).
func friendlyErr(err error) error {
	e := apperr.As(err)
	if e.Kind == apperr.KindNotFound {
		return fmt.Errorf("File not found")
	}
	return fmt.Errorf("%s", e.Message)
}

type props map[string]map[string]any

func schema(properties props, required ...string) map[string]any {
	p := map[string]any{}
	for k, v := range properties {
		p[k] = v
	}
	s := map[string]any{
		"type":       "object",
		"properties": p,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
