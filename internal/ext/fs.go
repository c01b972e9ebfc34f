package ext

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/charlievieth/fastwalk"
	"github.com/dop251/goja"
	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"

	"github.com/GriffinCanCode/guesthost/internal/hostapi"
	"github.com/GriffinCanCode/guesthost/internal/sandbox"
)

const (
	// MaxWalkEntries bounds host.fs.walk when the guest sets no limit
	MaxWalkEntries = 10000

	cwdDisplay = "<CWD>"
)

var errWalkLimit = errors.New("walk limit reached")

// FS exposes host.fs. File contents go through open checks; metadata and
// directory listings go through path-scoped read checks.
type FS struct {
	perms hostapi.FsPermissions
}

// NewFS creates the filesystem extension
func NewFS(perms hostapi.FsPermissions) *FS {
	return &FS{perms: perms}
}

func (f *FS) Name() string { return "fs" }

func (f *FS) Register(rt *sandbox.Runtime, vm *goja.Runtime) error {
	ns, err := namespace(vm, "fs")
	if err != nil {
		return err
	}
	fns := map[string]func(goja.FunctionCall) goja.Value{
		"readTextFile":  f.readTextFile(rt, vm),
		"writeTextFile": f.writeTextFile(rt, vm),
		"readDir":       f.readDir(rt, vm),
		"stat":          f.stat(rt, vm),
		"walk":          f.walk(rt, vm),
		"cwd":           f.cwd(rt, vm),
	}
	for name, fn := range fns {
		if err := ns.Set(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func (f *FS) readTextFile(rt *sandbox.Runtime, vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	const api = "host.fs.readTextFile"
	return func(call goja.FunctionCall) goja.Value {
		path := stringArg(vm, call, 0, "path")
		checked, err := f.perms.CheckOpen(path, true, false, false, api)
		if err != nil {
			record(rt, vm, api, err)
		}
		data, err := os.ReadFile(checked.Path)
		record(rt, vm, api, err)
		return vm.ToValue(DecodeText(data))
	}
}

// WriteOptions are the guest's options to host.fs.writeTextFile
type WriteOptions struct {
	Append bool  `json:"append"`
	Create *bool `json:"create"`
}

func (f *FS) writeTextFile(rt *sandbox.Runtime, vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	const api = "host.fs.writeTextFile"
	return func(call goja.FunctionCall) goja.Value {
		path := stringArg(vm, call, 0, "path")
		data := stringArg(vm, call, 1, "data")
		var opts WriteOptions
		options(vm, call.Argument(2), &opts)

		checked, err := f.perms.CheckOpen(path, false, true, false, api)
		if err != nil {
			record(rt, vm, api, err)
		}

		flags := os.O_WRONLY
		if opts.Create == nil || *opts.Create {
			flags |= os.O_CREATE
		}
		if opts.Append {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}
		file, err := os.OpenFile(checked.Path, flags, 0o644)
		if err != nil {
			record(rt, vm, api, err)
		}
		_, err = file.WriteString(data)
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		record(rt, vm, api, err)
		return goja.Undefined()
	}
}

// DirEntry is one element of host.fs.readDir
type DirEntry struct {
	Name        string `json:"name"`
	IsFile      bool   `json:"isFile"`
	IsDirectory bool   `json:"isDirectory"`
	IsSymlink   bool   `json:"isSymlink"`
}

func (f *FS) readDir(rt *sandbox.Runtime, vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	const api = "host.fs.readDir"
	return func(call goja.FunctionCall) goja.Value {
		path := stringArg(vm, call, 0, "path")
		resolved, err := f.perms.CheckRead(path, api)
		if err != nil {
			record(rt, vm, api, err)
		}
		entries, err := os.ReadDir(resolved)
		record(rt, vm, api, err)

		out := make([]interface{}, 0, len(entries))
		for _, e := range entries {
			t := e.Type()
			out = append(out, toObject(vm, DirEntry{
				Name:        e.Name(),
				IsFile:      t.IsRegular(),
				IsDirectory: t.IsDir(),
				IsSymlink:   t&os.ModeSymlink != 0,
			}))
		}
		return vm.NewArray(out...)
	}
}

// FileInfo is the result of host.fs.stat
type FileInfo struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	Mode        uint32 `json:"mode"`
	MTime       int64  `json:"mtime"`
	IsFile      bool   `json:"isFile"`
	IsDirectory bool   `json:"isDirectory"`
	IsSymlink   bool   `json:"isSymlink"`
	MIME        string `json:"mime,omitempty"`
}

// Stat describes path, following symlinks for everything except IsSymlink.
// Regular files are sniffed for a MIME type.
func Stat(path string) (FileInfo, error) {
	link, err := os.Lstat(path)
	if err != nil {
		return FileInfo{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	fi := FileInfo{
		Name:        info.Name(),
		Size:        info.Size(),
		Mode:        uint32(info.Mode().Perm()),
		MTime:       info.ModTime().UnixMilli(),
		IsFile:      info.Mode().IsRegular(),
		IsDirectory: info.IsDir(),
		IsSymlink:   link.Mode()&os.ModeSymlink != 0,
	}
	if fi.IsFile {
		if mtype, err := mimetype.DetectFile(path); err == nil {
			fi.MIME = mtype.String()
		}
	}
	return fi, nil
}

func (f *FS) stat(rt *sandbox.Runtime, vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	const api = "host.fs.stat"
	return func(call goja.FunctionCall) goja.Value {
		path := stringArg(vm, call, 0, "path")
		// CheckRead covered both forms; Lstat needs the unresolved one
		if _, err := f.perms.CheckRead(path, api); err != nil {
			record(rt, vm, api, err)
		}
		abs, err := hostapi.CleanResolver{}.Resolve(path)
		if err != nil {
			record(rt, vm, api, err)
		}
		fi, err := Stat(abs)
		record(rt, vm, api, err)
		return toObject(vm, fi)
	}
}

// WalkOptions are the guest's options to host.fs.walk
type WalkOptions struct {
	MaxDepth int `json:"maxDepth"`
	Limit    int `json:"limit"`
}

// WalkEntry is one element of host.fs.walk
type WalkEntry struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	IsDirectory bool   `json:"isDirectory"`
	Size        int64  `json:"size"`
}

// Walk lists everything under root in path order. Symlinks are not
// followed. When limit entries were collected the walk stops early and
// truncated is true.
func Walk(root string, opts WalkOptions) (entries []WalkEntry, truncated bool, err error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = MaxWalkEntries
	}

	var mu sync.Mutex
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if p == root {
			return nil
		}

		rel, _ := filepath.Rel(root, p)
		depth := strings.Count(rel, string(os.PathSeparator)) + 1
		if opts.MaxDepth > 0 && depth > opts.MaxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		var size int64
		if info, err := d.Info(); err == nil && !d.IsDir() {
			size = info.Size()
		}

		mu.Lock()
		defer mu.Unlock()
		if len(entries) >= limit {
			truncated = true
			return errWalkLimit
		}
		entries = append(entries, WalkEntry{
			Path:        p,
			Name:        d.Name(),
			IsDirectory: d.IsDir(),
			Size:        size,
		})
		return nil
	})
	if errors.Is(err, errWalkLimit) {
		err = nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, truncated, err
}

func (f *FS) walk(rt *sandbox.Runtime, vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	const api = "host.fs.walk"
	return func(call goja.FunctionCall) goja.Value {
		path := stringArg(vm, call, 0, "path")
		var opts WalkOptions
		options(vm, call.Argument(1), &opts)

		root, err := f.perms.CheckRead(path, api)
		if err != nil {
			record(rt, vm, api, err)
		}
		entries, truncated, err := Walk(root, opts)
		record(rt, vm, api, err)

		out := make([]interface{}, 0, len(entries))
		for _, e := range entries {
			out = append(out, toObject(vm, e))
		}
		result := vm.NewObject()
		_ = result.Set("entries", vm.NewArray(out...))
		_ = result.Set("truncated", truncated)
		return result
	}
}

func (f *FS) cwd(rt *sandbox.Runtime, vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	const api = "host.fs.cwd"
	return func(call goja.FunctionCall) goja.Value {
		dir, err := os.Getwd()
		if err != nil {
			record(rt, vm, api, err)
		}
		record(rt, vm, api, f.perms.CheckReadBlind(dir, cwdDisplay, api))
		return vm.ToValue(dir)
	}
}

// DecodeText returns data as a string, converting from the detected
// charset when data is not valid UTF-8
func DecodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil {
		return strings.ToValidUTF8(string(data), string(utf8.RuneError))
	}
	enc, _ := charset.Lookup(result.Charset)
	if enc == nil {
		return strings.ToValidUTF8(string(data), string(utf8.RuneError))
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), string(utf8.RuneError))
	}
	return string(out)
}
