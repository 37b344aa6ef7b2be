// Package file implements the local filesystem agent. Every path it touches
// is confined to a configured root directory; reads are capped at a
// configured size and writes are restricted to an extension allowlist.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/h-ess/agentic-mcp/config"
	"github.com/h-ess/agentic-mcp/logging"
	"github.com/h-ess/agentic-mcp/registry"
)

// matchingLinesPerFile caps how many line matches a single file contributes
// to a search result.
const matchingLinesPerFile = 10

// Agent provides file tools under a confined root.
type Agent struct {
	root    string
	maxSize int64
	allowed []string
	log     *logging.Entry
}

// New builds a file agent rooted at cfg.Root. The root must exist and be a
// directory.
func New(cfg config.FileConfig, log *logging.Entry) (*Agent, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %q: %w", cfg.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("file agent root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("file agent root %q is not a directory", root)
	}

	a := &Agent{
		root:    root,
		maxSize: cfg.MaxSize,
		allowed: cfg.AllowedExtensionList(),
		log:     log,
	}
	a.log.WithField("root", root).Info("file agent initialized")
	return a, nil
}

// IsAvailable reports true: the local filesystem has no liveness to probe.
func (a *Agent) IsAvailable() bool { return true }

// GetTools declares the six file tools.
func (a *Agent) GetTools() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Name:        "file_read",
			Description: "Read contents of a file",
			Parameters: []registry.Param{
				{Name: "path", Type: registry.TypeString, Description: "Path to the file to read", Required: true},
			},
		},
		{
			Name:        "file_write",
			Description: "Write content to a file",
			Parameters: []registry.Param{
				{Name: "path", Type: registry.TypeString, Description: "Path to the file to write", Required: true},
				{Name: "content", Type: registry.TypeString, Description: "Content to write to the file", Required: true},
				{Name: "mode", Type: registry.TypeString, Description: "Write mode", Enum: []any{"write", "append"}, Default: "write"},
			},
		},
		{
			Name:        "file_list",
			Description: "List files and directories",
			Parameters: []registry.Param{
				{Name: "path", Type: registry.TypeString, Description: "Directory path to list", Default: "."},
				{Name: "pattern", Type: registry.TypeString, Description: "File pattern to match (e.g. '*.go')", Default: "*"},
				{Name: "recursive", Type: registry.TypeBoolean, Description: "Include subdirectories recursively", Default: false},
				{Name: "show_hidden", Type: registry.TypeBoolean, Description: "Include hidden files", Default: false},
			},
		},
		{
			Name:        "file_search",
			Description: "Search for text within files",
			Parameters: []registry.Param{
				{Name: "query", Type: registry.TypeString, Description: "Text to search for", Required: true},
				{Name: "path", Type: registry.TypeString, Description: "Directory to search in", Default: "."},
				{Name: "file_pattern", Type: registry.TypeString, Description: "File pattern to search in (e.g. '*.go')", Default: "*"},
				{Name: "case_sensitive", Type: registry.TypeBoolean, Description: "Case sensitive search", Default: false},
				{Name: "max_results", Type: registry.TypeInteger, Description: "Maximum number of matching files", Default: 100, Minimum: registry.Float(1), Maximum: registry.Float(1000)},
			},
		},
		{
			Name:        "file_info",
			Description: "Get information about a file or directory",
			Parameters: []registry.Param{
				{Name: "path", Type: registry.TypeString, Description: "Path to get information about", Required: true},
			},
		},
		{
			Name:        "file_create_directory",
			Description: "Create a new directory",
			Parameters: []registry.Param{
				{Name: "path", Type: registry.TypeString, Description: "Path of directory to create", Required: true},
				{Name: "parents", Type: registry.TypeBoolean, Description: "Create parent directories if they don't exist", Default: false},
			},
		},
	}
}

// HandleToolCall dispatches one validated tool call.
func (a *Agent) HandleToolCall(ctx context.Context, tool string, args map[string]any) (any, error) {
	var (
		result any
		err    error
	)
	switch tool {
	case "file_read":
		result, err = a.read(args)
	case "file_write":
		result, err = a.write(args)
	case "file_list":
		result, err = a.list(args)
	case "file_search":
		result, err = a.search(ctx, args)
	case "file_info":
		result, err = a.info(args)
	case "file_create_directory":
		result, err = a.createDirectory(args)
	default:
		err = fmt.Errorf("unknown tool: %s", tool)
	}
	if err != nil {
		a.log.WithError(err).WithField("tool", tool).Error("file tool failed")
		return nil, err
	}
	return result, nil
}

// resolve joins path onto the agent root and rejects anything escaping it.
// Absolute paths are allowed only when they already point inside the root.
func (a *Agent) resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New("path must not be empty")
	}
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(a.root, resolved)
	}
	resolved = filepath.Clean(resolved)

	rel, err := filepath.Rel(a.root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the configured root", path)
	}
	return resolved, nil
}

type readArgs struct {
	Path string `json:"path"`
}

func (a *Agent) read(args map[string]any) (any, error) {
	var in readArgs
	if err := registry.DecodeArguments(args, &in); err != nil {
		return nil, err
	}
	path, err := a.resolve(in.Path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is not a file: %s", path)
	}
	if info.Size() > a.maxSize {
		return nil, fmt.Errorf("file too large: %d bytes (limit %d)", info.Size(), a.maxSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("file is not valid UTF-8 text: %s", path)
	}
	return map[string]any{
		"content": string(content),
		"path":    path,
		"size":    info.Size(),
	}, nil
}

type writeArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Mode    string `json:"mode"`
}

func (a *Agent) write(args map[string]any) (any, error) {
	var in writeArgs
	if err := registry.DecodeArguments(args, &in); err != nil {
		return nil, err
	}
	path, err := a.resolve(in.Path)
	if err != nil {
		return nil, err
	}
	if len(a.allowed) > 0 {
		ext := strings.ToLower(filepath.Ext(path))
		if !extAllowed(a.allowed, ext) {
			return nil, fmt.Errorf("extension %q is not allowed for writing", ext)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating parent directories: %w", err)
	}

	if in.Mode == "append" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to write file: %w", err)
		}
		_, werr := f.WriteString(in.Content)
		cerr := f.Close()
		if werr != nil {
			return nil, fmt.Errorf("failed to write file: %w", werr)
		}
		if cerr != nil {
			return nil, fmt.Errorf("failed to write file: %w", cerr)
		}
	} else {
		if err := os.WriteFile(path, []byte(in.Content), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write file: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat after write: %w", err)
	}
	return map[string]any{
		"path": path,
		"size": info.Size(),
		"mode": in.Mode,
	}, nil
}

// Entry describes one file or directory in a listing.
type Entry struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	AbsolutePath string `json:"absolute_path"`
	Size         int64  `json:"size"`
	Modified     string `json:"modified"`
	IsDirectory  bool   `json:"is_directory"`
	IsFile       bool   `json:"is_file"`
}

type listArgs struct {
	Path       string `json:"path"`
	Pattern    string `json:"pattern"`
	Recursive  bool   `json:"recursive"`
	ShowHidden bool   `json:"show_hidden"`
}

func (a *Agent) list(args map[string]any) (any, error) {
	var in listArgs
	if err := registry.DecodeArguments(args, &in); err != nil {
		return nil, err
	}
	dir, err := a.resolve(in.Path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("directory not found: %s", dir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dir)
	}

	var files, directories []Entry
	collect := func(path string, d os.DirEntry) error {
		fi, err := d.Info()
		if err != nil {
			return nil // vanished between walk and stat
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = d.Name()
		}
		entry := Entry{
			Name:         d.Name(),
			Path:         rel,
			AbsolutePath: path,
			Size:         fi.Size(),
			Modified:     fi.ModTime().UTC().Format(time.RFC3339),
			IsDirectory:  d.IsDir(),
			IsFile:       fi.Mode().IsRegular(),
		}
		if d.IsDir() {
			directories = append(directories, entry)
		} else {
			files = append(files, entry)
		}
		return nil
	}

	if in.Recursive {
		err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if path == dir {
				return nil
			}
			hidden := strings.HasPrefix(d.Name(), ".")
			if hidden && !in.ShowHidden {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if ok, _ := filepath.Match(in.Pattern, d.Name()); !ok {
				return nil
			}
			return collect(path, d)
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", dir, err)
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", dir, err)
		}
		for _, d := range entries {
			if !in.ShowHidden && strings.HasPrefix(d.Name(), ".") {
				continue
			}
			if ok, _ := filepath.Match(in.Pattern, d.Name()); !ok {
				continue
			}
			if err := collect(filepath.Join(dir, d.Name()), d); err != nil {
				return nil, err
			}
		}
	}

	sortEntries(files)
	sortEntries(directories)
	return map[string]any{
		"directory":         dir,
		"files":             files,
		"directories":       directories,
		"total_files":       len(files),
		"total_directories": len(directories),
	}, nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Path < entries[j].Path
	})
}

// LineMatch is one matching line within a searched file.
type LineMatch struct {
	LineNumber    int    `json:"line_number"`
	Line          string `json:"line"`
	MatchPosition int    `json:"match_position"`
}

// FileMatch is one file containing the search query.
type FileMatch struct {
	File          string      `json:"file"`
	AbsolutePath  string      `json:"absolute_path"`
	Matches       int         `json:"matches"`
	MatchingLines []LineMatch `json:"matching_lines"`
}

type searchArgs struct {
	Query         string `json:"query"`
	Path          string `json:"path"`
	FilePattern   string `json:"file_pattern"`
	CaseSensitive bool   `json:"case_sensitive"`
	MaxResults    int    `json:"max_results"`
}

func (a *Agent) search(ctx context.Context, args map[string]any) (any, error) {
	var in searchArgs
	if err := registry.DecodeArguments(args, &in); err != nil {
		return nil, err
	}
	dir, err := a.resolve(in.Path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("search path not found: %s", dir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("search path is not a directory: %s", dir)
	}

	query := in.Query
	if !in.CaseSensitive {
		query = strings.ToLower(query)
	}

	results := make([]FileMatch, 0)
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if len(results) >= in.MaxResults {
			return filepath.SkipAll
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(in.FilePattern, d.Name()); !ok {
			return nil
		}

		fi, ferr := d.Info()
		if ferr != nil || fi.Size() > a.maxSize {
			return nil
		}
		content, rerr := os.ReadFile(path)
		if rerr != nil || !utf8.Valid(content) {
			return nil // unreadable and binary files are skipped silently
		}

		match := matchFile(string(content), query, in.CaseSensitive)
		if match == nil {
			return nil
		}
		rel, rerr2 := filepath.Rel(dir, path)
		if rerr2 != nil {
			rel = d.Name()
		}
		match.File = rel
		match.AbsolutePath = path
		results = append(results, *match)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"query":          in.Query,
		"search_path":    dir,
		"file_pattern":   in.FilePattern,
		"case_sensitive": in.CaseSensitive,
		"total_matches":  len(results),
		"results":        results,
	}, nil
}

// matchFile scans content for query and returns the per-line matches, or nil
// when the file does not contain the query at all.
func matchFile(content, query string, caseSensitive bool) *FileMatch {
	searchContent := content
	if !caseSensitive {
		searchContent = strings.ToLower(content)
	}
	if !strings.Contains(searchContent, query) {
		return nil
	}

	var matching []LineMatch
	total := 0
	for i, line := range strings.Split(content, "\n") {
		searchLine := line
		if !caseSensitive {
			searchLine = strings.ToLower(line)
		}
		pos := strings.Index(searchLine, query)
		if pos < 0 {
			continue
		}
		total++
		if len(matching) < matchingLinesPerFile {
			matching = append(matching, LineMatch{
				LineNumber:    i + 1,
				Line:          strings.TrimSpace(line),
				MatchPosition: pos,
			})
		}
	}
	return &FileMatch{Matches: total, MatchingLines: matching}
}

type infoArgs struct {
	Path string `json:"path"`
}

func (a *Agent) info(args map[string]any) (any, error) {
	var in infoArgs
	if err := registry.DecodeArguments(args, &in); err != nil {
		return nil, err
	}
	path, err := a.resolve(in.Path)
	if err != nil {
		return nil, err
	}

	fi, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("path not found: %s", path)
	}

	result := map[string]any{
		"path":         path,
		"name":         filepath.Base(path),
		"parent":       filepath.Dir(path),
		"exists":       true,
		"is_file":      fi.Mode().IsRegular(),
		"is_directory": fi.IsDir(),
		"is_symlink":   fi.Mode()&os.ModeSymlink != 0,
		"size":         fi.Size(),
		"modified":     fi.ModTime().UTC().Format(time.RFC3339),
		"permissions":  fmt.Sprintf("%03o", fi.Mode().Perm()),
	}
	if fi.Mode().IsRegular() {
		result["extension"] = filepath.Ext(path)
		result["is_text"] = looksLikeText(path)
	}
	return result, nil
}

// looksLikeText samples the first KiB and reports whether it reads as plain
// ASCII text (tabs and newlines allowed).
func looksLikeText(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, 1024)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return false
	}
	for _, b := range buf[:n] {
		if b >= 128 {
			return false
		}
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			return false
		}
	}
	return true
}

type mkdirArgs struct {
	Path    string `json:"path"`
	Parents bool   `json:"parents"`
}

func (a *Agent) createDirectory(args map[string]any) (any, error) {
	var in mkdirArgs
	if err := registry.DecodeArguments(args, &in); err != nil {
		return nil, err
	}
	path, err := a.resolve(in.Path)
	if err != nil {
		return nil, err
	}

	if fi, err := os.Stat(path); err == nil {
		if fi.IsDir() {
			return map[string]any{
				"path":    path,
				"created": false,
				"message": "directory already exists",
			}, nil
		}
		return nil, fmt.Errorf("path exists but is not a directory: %s", path)
	}

	if in.Parents {
		err = os.MkdirAll(path, 0o755)
	} else {
		err = os.Mkdir(path, 0o755)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.New("parent directory does not exist, pass parents=true to create it")
		}
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return map[string]any{
		"path":    path,
		"created": true,
		"parents": in.Parents,
	}, nil
}

func extAllowed(allowed []string, ext string) bool {
	for _, a := range allowed {
		if a == ext {
			return true
		}
	}
	return false
}
