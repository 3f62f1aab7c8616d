package scripts

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"codeberg.org/sigterm-de/scriptbox/internal/engine"
	"codeberg.org/sigterm-de/scriptbox/internal/logging"
)

// LoadResult is the combined outcome of loading built-in and user scripts.
type LoadResult struct {
	Scripts      []Script // Successfully loaded scripts from all sources
	SkippedFiles []string // Paths/names of files that were skipped
	BuiltInCount int
	UserCount    int
}

// maxUserScriptBytes caps the size of a single user script file.
const maxUserScriptBytes = 5 * 1024 * 1024 // 5 MB

// Loader discovers and parses scripts from an embedded asset FS and the user
// scripts directory.
type Loader interface {
	// Load reads all built-in and user scripts. Bad files are logged and
	// skipped; an error means the built-in set could not be walked at all.
	Load(userScriptsDir string) (LoadResult, error)
}

type loader struct {
	builtinFS fs.FS
}

// NewLoader returns a Loader over builtinFS, normally assets.Scripts().
func NewLoader(builtinFS fs.FS) Loader {
	return &loader{builtinFS: builtinFS}
}

// Load implements Loader.
func (l *loader) Load(userScriptsDir string) (LoadResult, error) {
	var result LoadResult

	if err := l.loadBuiltIns(&result); err != nil {
		return result, err
	}
	if userScriptsDir != "" {
		l.loadUserScripts(userScriptsDir, &result)
	}
	return result, nil
}

func isScriptFile(name string) bool {
	_, ok := engine.EngineForExtension(filepath.Ext(name))
	return ok
}

func (l *loader) loadBuiltIns(result *LoadResult) error {
	return fs.WalkDir(l.builtinFS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		// lib/ holds require() modules, not runnable scripts.
		if d.IsDir() {
			if d.Name() == "lib" {
				return fs.SkipDir
			}
			return nil
		}
		if !isScriptFile(path) {
			return nil
		}

		data, readErr := fs.ReadFile(l.builtinFS, path)
		if readErr != nil {
			logging.Log(logging.WARN, path, "cannot read embedded script: "+readErr.Error())
			result.SkippedFiles = append(result.SkippedFiles, path)
			return nil
		}

		script, parseErr := ParseHeader(path, string(data))
		if parseErr != nil {
			logging.Log(logging.WARN, path, "skipping: "+parseErr.Error())
			result.SkippedFiles = append(result.SkippedFiles, path)
			return nil
		}

		script.Source = BuiltIn
		script.FilePath = "embedded:" + path
		result.Scripts = append(result.Scripts, script)
		result.BuiltInCount++
		return nil
	})
}

func (l *loader) loadUserScripts(dir string, result *LoadResult) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Log(logging.INFO, "", "user scripts dir does not exist: "+dir)
			return
		}
		logging.Log(logging.WARN, "", "cannot read user scripts dir: "+err.Error())
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !isScriptFile(entry.Name()) {
			continue
		}
		absPath := filepath.Join(dir, entry.Name())
		script, err := LoadFile(absPath)
		if err != nil {
			logging.Log(logging.WARN, entry.Name(), "skipping: "+err.Error())
			result.SkippedFiles = append(result.SkippedFiles, entry.Name())
			continue
		}
		result.Scripts = append(result.Scripts, script)
		result.UserCount++
	}
}

// LoadFile reads and parses a single user script. The header must name the
// script; files over the size limit are rejected.
func LoadFile(path string) (Script, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Script{}, err
	}
	if info.Size() > maxUserScriptBytes {
		return Script{}, fmt.Errorf("file size %d B exceeds limit of %d B", info.Size(), maxUserScriptBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, err
	}

	script, err := ParseHeader(path, string(data))
	if err != nil {
		return script, err
	}
	script.Source = UserProvided
	script.FilePath = path
	return script, nil
}

// LoadAdHoc is LoadFile for scripts run directly from the command line. A
// file without a header is still runnable: it is named after its base name
// and its engine comes from the extension.
func LoadAdHoc(path string) (Script, error) {
	script, err := LoadFile(path)
	if err == nil {
		return script, nil
	}
	if script.Content == "" {
		return Script{}, err
	}
	if script.Name == "" {
		script.Name = filepath.Base(path)
	}
	if script.Engine == "" {
		if name, ok := engine.EngineForExtension(filepath.Ext(path)); ok {
			script.Engine = name
		}
	}
	script.Source = UserProvided
	script.FilePath = path
	return script, nil
}
