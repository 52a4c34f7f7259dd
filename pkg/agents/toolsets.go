package agents

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/mangiafuoco/pkg/files"
	"github.com/go-go-golems/mangiafuoco/pkg/memory"
	"github.com/go-go-golems/mangiafuoco/pkg/research"
	"github.com/go-go-golems/mangiafuoco/pkg/sandbox"
	"github.com/go-go-golems/mangiafuoco/pkg/tools"
	"github.com/go-go-golems/mangiafuoco/pkg/workspace"
)

// Browser is the full browsing surface the web tools expose: search
// plus stateful navigation and extraction.
type Browser interface {
	research.Searcher
	NavigateTo(ctx context.Context, rawURL string) error
	ExtractContent(ctx context.Context) (*research.PageExtract, error)
}

type webSearchParams struct {
	Query      string `json:"query" jsonschema:"description=Search query"`
	NumResults int    `json:"num_results,omitempty" jsonschema:"description=Maximum number of results to return"`
}

type searchExtractParams struct {
	Query    string `json:"query" jsonschema:"description=Search query"`
	MaxPages int    `json:"max_pages,omitempty" jsonschema:"description=Maximum number of pages to visit and extract"`
}

type navigateParams struct {
	URL string `json:"url" jsonschema:"description=URL to navigate to"`
}

type navigateResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	Error   string `json:"error,omitempty"`
}

// WebTools builds the web research tools over a browser.
func WebTools(browser Browser) ([]tools.Definition, error) {
	webSearch, err := tools.NewDefinition(
		"web_search",
		"Search the web and return result titles, URLs and snippets",
		webSearchParams{},
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var p webSearchParams
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, errors.Wrap(err, "invalid web_search arguments")
			}
			if p.NumResults <= 0 {
				p.NumResults = research.DefaultNumResults
			}
			return browser.WebSearch(ctx, p.Query, p.NumResults)
		})
	if err != nil {
		return nil, err
	}

	searchExtract, err := tools.NewDefinition(
		"search_and_extract",
		"Search the web, visit the top results and return the extracted page contents",
		searchExtractParams{},
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var p searchExtractParams
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, errors.Wrap(err, "invalid search_and_extract arguments")
			}
			return browser.SearchAndExtract(ctx, p.Query, p.MaxPages)
		})
	if err != nil {
		return nil, err
	}

	navigate, err := tools.NewDefinition(
		"navigate_to",
		"Load a page so its content can be extracted",
		navigateParams{},
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var p navigateParams
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, errors.Wrap(err, "invalid navigate_to arguments")
			}
			res := navigateResult{Success: true, URL: p.URL}
			if err := browser.NavigateTo(ctx, p.URL); err != nil {
				res.Success = false
				res.Error = err.Error()
			}
			return res, nil
		})
	if err != nil {
		return nil, err
	}

	extract, err := tools.NewDefinition(
		"extract_content",
		"Extract title, text content and links from the currently loaded page",
		nil,
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			return browser.ExtractContent(ctx)
		})
	if err != nil {
		return nil, err
	}

	return []tools.Definition{webSearch, searchExtract, navigate, extract}, nil
}

type readFileParams struct {
	Path string `json:"path" jsonschema:"description=Path of the file to read, relative to the workspace"`
}

type writeFileParams struct {
	Path    string `json:"path" jsonschema:"description=Path of the file to write, relative to the workspace"`
	Content string `json:"content" jsonschema:"description=Content to write"`
}

type listFilesParams struct {
	Directory string `json:"directory,omitempty" jsonschema:"description=Directory to list, relative to the workspace"`
	Pattern   string `json:"pattern,omitempty" jsonschema:"description=Glob pattern to filter file names"`
}

type createDirectoryParams struct {
	Path string `json:"path" jsonschema:"description=Directory path to create, relative to the workspace"`
}

// FileTools builds the file operation tools over the files manager.
func FileTools(fm *files.Manager) ([]tools.Definition, error) {
	readFile, err := tools.NewDefinition(
		"read_file",
		"Read a file from the workspace",
		readFileParams{},
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var p readFileParams
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, errors.Wrap(err, "invalid read_file arguments")
			}
			return fm.ReadFile(p.Path)
		})
	if err != nil {
		return nil, err
	}

	writeFile, err := tools.NewDefinition(
		"write_file",
		"Write content to a file in the workspace, creating parent directories as needed",
		writeFileParams{},
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var p writeFileParams
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, errors.Wrap(err, "invalid write_file arguments")
			}
			return fm.WriteFile(p.Path, p.Content)
		})
	if err != nil {
		return nil, err
	}

	appendFile, err := tools.NewDefinition(
		"append_file",
		"Append content to a file in the workspace",
		writeFileParams{},
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var p writeFileParams
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, errors.Wrap(err, "invalid append_file arguments")
			}
			return fm.AppendFile(p.Path, p.Content)
		})
	if err != nil {
		return nil, err
	}

	listFiles, err := tools.NewDefinition(
		"list_files",
		"List files in a workspace directory, optionally filtered by a glob pattern",
		listFilesParams{},
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var p listFilesParams
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, errors.Wrap(err, "invalid list_files arguments")
			}
			return fm.ListFiles(p.Directory, p.Pattern)
		})
	if err != nil {
		return nil, err
	}

	createDirectory, err := tools.NewDefinition(
		"create_directory",
		"Create a directory in the workspace",
		createDirectoryParams{},
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var p createDirectoryParams
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, errors.Wrap(err, "invalid create_directory arguments")
			}
			return fm.CreateDirectory(p.Path)
		})
	if err != nil {
		return nil, err
	}

	return []tools.Definition{readFile, writeFile, appendFile, listFiles, createDirectory}, nil
}

type executePythonParams struct {
	Code    string `json:"code" jsonschema:"description=Python code to execute"`
	Timeout int    `json:"timeout,omitempty" jsonschema:"description=Execution timeout in seconds"`
}

type installPackageParams struct {
	Package string `json:"package" jsonschema:"description=Package name to install with pip"`
}

type runShellParams struct {
	Command string `json:"command" jsonschema:"description=Shell command to run"`
	Timeout int    `json:"timeout,omitempty" jsonschema:"description=Execution timeout in seconds"`
}

// CodeTools builds the code execution tools over the sandbox runner.
func CodeTools(runner *sandbox.Runner) ([]tools.Definition, error) {
	executePython, err := tools.NewDefinition(
		"execute_python_code",
		"Execute Python code in the workspace sandbox and return stdout, stderr and the exit code",
		executePythonParams{},
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var p executePythonParams
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, errors.Wrap(err, "invalid execute_python_code arguments")
			}
			return runner.ExecutePython(ctx, p.Code, time.Duration(p.Timeout)*time.Second)
		})
	if err != nil {
		return nil, err
	}

	installPackage, err := tools.NewDefinition(
		"install_package",
		"Install a Python package with pip",
		installPackageParams{},
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var p installPackageParams
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, errors.Wrap(err, "invalid install_package arguments")
			}
			return runner.InstallPackage(ctx, p.Package)
		})
	if err != nil {
		return nil, err
	}

	runShell, err := tools.NewDefinition(
		"run_shell_command",
		"Run an allow-listed shell command in the workspace",
		runShellParams{},
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var p runShellParams
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, errors.Wrap(err, "invalid run_shell_command arguments")
			}
			return runner.RunShell(ctx, p.Command, time.Duration(p.Timeout)*time.Second)
		})
	if err != nil {
		return nil, err
	}

	return []tools.Definition{executePython, installPackage, runShell}, nil
}

type vectorUpsertParams struct {
	Namespace string                   `json:"namespace" jsonschema:"description=Memory namespace to write into"`
	Texts     []string                 `json:"texts" jsonschema:"description=Texts to store"`
	Metadatas []map[string]interface{} `json:"metadatas,omitempty" jsonschema:"description=Optional metadata entry per text"`
}

type vectorUpsertResult struct {
	Success bool     `json:"success"`
	Count   int      `json:"count,omitempty"`
	IDs     []string `json:"ids,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type vectorQueryParams struct {
	Namespace string `json:"namespace" jsonschema:"description=Memory namespace to query"`
	QueryText string `json:"query_text" jsonschema:"description=Query text"`
	TopK      int    `json:"top_k,omitempty" jsonschema:"description=Number of entries to return"`
}

type vectorQueryResult struct {
	Success bool         `json:"success"`
	Results []memory.Hit `json:"results,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// MemoryTools builds the vector memory tools over a store. Store
// failures come back as success=false payloads, matching the shape the
// model is prompted to expect.
func MemoryTools(store memory.Store) ([]tools.Definition, error) {
	upsert, err := tools.NewDefinition(
		"vector_upsert",
		"Upsert texts into a vector memory namespace",
		vectorUpsertParams{},
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var p vectorUpsertParams
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, errors.Wrap(err, "invalid vector_upsert arguments")
			}
			entries := make([]memory.Entry, 0, len(p.Texts))
			for i, text := range p.Texts {
				entry := memory.Entry{Namespace: p.Namespace, Content: text}
				if i < len(p.Metadatas) {
					entry.Metadata = p.Metadatas[i]
				}
				entries = append(entries, entry)
			}
			ids, err := store.Upsert(ctx, entries...)
			if err != nil {
				return vectorUpsertResult{Success: false, Error: err.Error()}, nil
			}
			return vectorUpsertResult{Success: true, Count: len(ids), IDs: ids}, nil
		})
	if err != nil {
		return nil, err
	}

	query, err := tools.NewDefinition(
		"vector_query",
		"Query the most similar entries from a vector memory namespace",
		vectorQueryParams{},
		func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var p vectorQueryParams
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, errors.Wrap(err, "invalid vector_query arguments")
			}
			hits, err := store.Query(ctx, p.Namespace, p.QueryText, p.TopK)
			if err != nil {
				return vectorQueryResult{Success: false, Error: err.Error()}, nil
			}
			return vectorQueryResult{Success: true, Results: hits}, nil
		})
	if err != nil {
		return nil, err
	}

	return []tools.Definition{upsert, query}, nil
}

// registerAll collects definition sets into one registry.
func registerAll(registry tools.Registry, sets ...[]tools.Definition) error {
	for _, set := range sets {
		for _, def := range set {
			if err := registry.Register(def); err != nil {
				return err
			}
		}
	}
	return nil
}

// Declared tool menus per definition set. Toolset constructors validate
// the built registry against these, so a renamed or dropped definition
// fails at startup instead of surfacing as "Unknown function" mid-task.
var (
	webToolNames    = []string{"web_search", "search_and_extract", "navigate_to", "extract_content"}
	fileToolNames   = []string{"read_file", "write_file", "append_file", "list_files", "create_directory"}
	codeToolNames   = []string{"execute_python_code", "install_package", "run_shell_command"}
	memoryToolNames = []string{"vector_upsert", "vector_query"}
)

func declaredMenu(nameSets ...[]string) []tools.Declaration {
	var declared []tools.Declaration
	for _, names := range nameSets {
		for _, name := range names {
			declared = append(declared, tools.Declaration{Name: name})
		}
	}
	return declared
}

// ManagerToolset assembles the manager's menu: web research, files,
// code execution, sub-agent dispatch and todo management.
func ManagerToolset(browser Browser, fm *files.Manager, runner *sandbox.Runner, factory *Factory, todo *workspace.TodoStore, journal *workspace.Journal) (tools.Registry, error) {
	web, err := WebTools(browser)
	if err != nil {
		return nil, err
	}
	file, err := FileTools(fm)
	if err != nil {
		return nil, err
	}
	code, err := CodeTools(runner)
	if err != nil {
		return nil, err
	}
	dispatch, err := DispatchTool(factory, journal)
	if err != nil {
		return nil, err
	}
	updateTodo, err := UpdateTodoTool(todo, journal)
	if err != nil {
		return nil, err
	}

	registry := tools.NewInMemoryRegistry()
	if err := registerAll(registry, web, file, code, []tools.Definition{dispatch, updateTodo}); err != nil {
		return nil, err
	}
	declared := declaredMenu(webToolNames, fileToolNames, codeToolNames,
		[]string{"dispatch_sub_agent", "update_todo"})
	if err := tools.ValidateDeclared(registry, declared); err != nil {
		return nil, err
	}
	return registry, nil
}

// CoderToolset: code execution plus files.
func CoderToolset(fm *files.Manager, runner *sandbox.Runner) (tools.Registry, error) {
	file, err := FileTools(fm)
	if err != nil {
		return nil, err
	}
	code, err := CodeTools(runner)
	if err != nil {
		return nil, err
	}
	registry := tools.NewInMemoryRegistry()
	if err := registerAll(registry, file, code); err != nil {
		return nil, err
	}
	if err := tools.ValidateDeclared(registry, declaredMenu(fileToolNames, codeToolNames)); err != nil {
		return nil, err
	}
	return registry, nil
}

// AnalystToolset: code execution, files and vector memory.
func AnalystToolset(fm *files.Manager, runner *sandbox.Runner, store memory.Store) (tools.Registry, error) {
	registry, err := CoderToolset(fm, runner)
	if err != nil {
		return nil, err
	}
	mem, err := MemoryTools(store)
	if err != nil {
		return nil, err
	}
	if err := registerAll(registry, mem); err != nil {
		return nil, err
	}
	if err := tools.ValidateDeclared(registry, declaredMenu(memoryToolNames)); err != nil {
		return nil, err
	}
	return registry, nil
}

// CriticToolset: files plus web research, for fact checking.
func CriticToolset(fm *files.Manager, browser Browser) (tools.Registry, error) {
	file, err := FileTools(fm)
	if err != nil {
		return nil, err
	}
	web, err := WebTools(browser)
	if err != nil {
		return nil, err
	}
	registry := tools.NewInMemoryRegistry()
	if err := registerAll(registry, file, web); err != nil {
		return nil, err
	}
	if err := tools.ValidateDeclared(registry, declaredMenu(fileToolNames, webToolNames)); err != nil {
		return nil, err
	}
	return registry, nil
}
