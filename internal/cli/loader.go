package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/taskdispatch/internal/compiler"
)

// LoadResult contains the results of loading tree definitions from a directory.
type LoadResult struct {
	Program   *compiler.Program
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred while loading trees.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadTrees loads the CUE package in dir and compiles its task trees.
// A nil result means nothing could be compiled.
func LoadTrees(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("trees directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing trees directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	// Files are named explicitly so trees without a package clause load
	// alongside packaged ones.
	args := make([]string, 0, len(cueFiles))
	for _, f := range cueFiles {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("resolving %s: %v", f, err)}
		}
		args = append(args, abs)
	}

	ctx := cuecontext.New()
	instances := load.Instances(args, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	prog, err := compiler.Compile(value)
	if err != nil {
		return nil, convertCompileError(err)
	}

	return &LoadResult{
		Program:   prog,
		CUEValue:  value,
		FileCount: len(cueFiles),
	}, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error

	// Tree definition errors
	ErrCodeInvalidNode      = "E101" // Malformed task or context
	ErrCodeInvalidCondition = "E102" // Malformed when/stay condition
	ErrCodeInvalidAction    = "E103" // Malformed do step
	ErrCodeInvalidDuration  = "E104" // Unparseable duration
	ErrCodeInvalidPins      = "E105" // Malformed output_pins
)

// MapFieldToErrorCode maps a compiler error field, a CUE path such as
// tree.main.children[0].when, to an error code. The innermost known
// selector decides.
func MapFieldToErrorCode(field string) string {
	parts := strings.Split(field, ".")
	for i := len(parts) - 1; i >= 0; i-- {
		part := parts[i]
		if j := strings.IndexByte(part, '['); j >= 0 {
			part = part[:j]
		}
		switch part {
		case "every", "delay":
			return ErrCodeInvalidDuration
		case "output_pins":
			return ErrCodeInvalidPins
		case "do":
			return ErrCodeInvalidAction
		case "when", "stay":
			return ErrCodeInvalidCondition
		case "tree", "children", "on_exit", "task", "context":
			return ErrCodeInvalidNode
		}
	}
	return ErrCodeGeneric
}
