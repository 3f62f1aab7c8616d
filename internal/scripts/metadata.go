package scripts

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/sigterm-de/scriptbox/internal/engine"
)

// ScriptSource distinguishes embedded (built-in) scripts from user-provided ones.
type ScriptSource int

const (
	BuiltIn      ScriptSource = iota // Embedded via go:embed at compile time
	UserProvided                     // Loaded from the user scripts directory
)

func (s ScriptSource) String() string {
	if s == BuiltIn {
		return "built-in"
	}
	return "user"
}

// Script holds the parsed header and full source of a single library script.
type Script struct {
	Name        string
	Description string
	Engine      string   // From @engine, else from the file extension
	Tags        []string // Empty slice if not declared
	Bias        float64  // Lower values sort earlier
	Context     string   // Default ctx value from @ctx
	Source      ScriptSource
	FilePath    string // Virtual path for built-ins; absolute path for user scripts
	Content     string // Full source, header included
}

// errNoHeader is returned when the file does not open with a comment block.
var errNoHeader = errors.New("missing header comment")

// ParseHeader reads the metadata carried by the leading comment lines of a
// script. Both "//" and "#" comments are accepted, and a "#!" line before
// the header is skipped. The header ends at the first line that is not a
// comment. Content is always set to the full source text.
//
// Returns an error when the file has no header, when @name or @description
// are missing, or when no engine can be determined.
func ParseHeader(filename, content string) (Script, error) {
	s := Script{
		Content: content,
		Tags:    []string{},
	}

	body := strings.TrimPrefix(content, "\xef\xbb\xbf")
	sawComment := false

	for i, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if i == 0 && strings.HasPrefix(trimmed, "#!") {
			continue
		}
		if trimmed == "" {
			if sawComment {
				break
			}
			continue
		}
		text, ok := stripComment(trimmed)
		if !ok {
			break
		}
		sawComment = true

		if !strings.HasPrefix(text, "@") {
			continue
		}
		key, val, _ := strings.Cut(text[1:], " ")
		val = strings.TrimSpace(val)

		switch key {
		case "name":
			s.Name = val
		case "description":
			s.Description = val
		case "engine":
			s.Engine = strings.ToLower(val)
		case "ctx":
			s.Context = val
		case "tags":
			for tag := range strings.SplitSeq(val, ",") {
				if t := strings.TrimSpace(tag); t != "" {
					s.Tags = append(s.Tags, t)
				}
			}
		case "bias":
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				s.Bias = f
			}
		}
	}

	if !sawComment {
		return s, errNoHeader
	}
	if s.Name == "" {
		return s, fmt.Errorf("header missing @name")
	}
	if s.Description == "" {
		return s, fmt.Errorf("header missing @description")
	}
	if s.Engine == "" {
		name, ok := engine.EngineForExtension(filepath.Ext(filename))
		if !ok {
			return s, fmt.Errorf("no @engine and unknown extension %q", filepath.Ext(filename))
		}
		s.Engine = name
	}
	return s, nil
}

func stripComment(line string) (string, bool) {
	switch {
	case strings.HasPrefix(line, "//"):
		return strings.TrimSpace(line[2:]), true
	case strings.HasPrefix(line, "#"):
		return strings.TrimSpace(line[1:]), true
	}
	return "", false
}
