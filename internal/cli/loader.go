package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/sluicedb/sluice/internal/gate"
	"github.com/sluicedb/sluice/internal/op"
)

// Rule files are CUE packages declaring an ordered rules list:
//
//	rules: [
//		{type: "create-link"},
//		{type: "delete-link", depends_on: "create-link"},
//	]
//
// List order is the gate's scan order. Types without depends_on have a
// vacuous dependency predicate.

// LoadMode controls how errors are handled during rule loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the results of loading rules from a directory.
type LoadResult struct {
	Rules     []gate.Rule
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred during rule loading.
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

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	// Rule validation errors
	ErrCodeNoRules       = "E101" // No rules declared
	ErrCodeRuleType      = "E102" // Missing or invalid rule type
	ErrCodeRuleDependsOn = "E103" // Invalid depends_on value
	ErrCodeRuleSet       = "E104" // Rule set rejected (duplicates, dangling counterpart, self-dependency)
)

// LoadRules loads integration rules from a directory of CUE files.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadRules(dir string, mode LoadMode) (*LoadResult, []error) {
	var errs []error

	// Verify directory exists
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rules directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing rules directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	// Find CUE files
	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	// Load CUE instances
	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	rulesVal := value.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return result, []error{&LoadError{Code: ErrCodeNoRules, Message: "no rules list declared"}}
	}

	iter, iterErr := rulesVal.List()
	if iterErr != nil {
		return result, []error{&LoadError{Code: ErrCodeNoRules, Message: fmt.Sprintf("rules must be a list: %v", iterErr)}}
	}

	for iter.Next() {
		rule, ruleErr := extractRule(iter.Value())
		if ruleErr != nil {
			errs = append(errs, ruleErr)
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Rules = append(result.Rules, rule)
	}

	if len(result.Rules) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoRules, Message: "rules list is empty"})
	}

	return result, errs
}

// extractRule decodes a single rule element.
func extractRule(v cue.Value) (gate.Rule, error) {
	var rule gate.Rule

	typVal := v.LookupPath(cue.ParsePath("type"))
	if !typVal.Exists() {
		return rule, &LoadError{Code: ErrCodeRuleType, Message: "rule missing type", Pos: v.Pos()}
	}
	typ, err := typVal.String()
	if err != nil {
		return rule, &LoadError{Code: ErrCodeRuleType, Message: fmt.Sprintf("rule type must be a string: %v", err), Pos: typVal.Pos()}
	}
	if typ == "" {
		return rule, &LoadError{Code: ErrCodeRuleType, Message: "rule type is empty", Pos: typVal.Pos()}
	}
	rule.Type = op.Type(typ)

	depVal := v.LookupPath(cue.ParsePath("depends_on"))
	if depVal.Exists() {
		dep, err := depVal.String()
		if err != nil {
			return rule, &LoadError{Code: ErrCodeRuleDependsOn, Message: fmt.Sprintf("depends_on must be a string: %v", err), Pos: depVal.Pos()}
		}
		rule.DependsOn = op.Type(dep)
	}

	return rule, nil
}

// RuleSetFromDir loads rules from dir when given, or returns the
// built-in defaults. The returned set has passed RuleSet validation.
func RuleSetFromDir(dir string) (*gate.RuleSet, error) {
	if dir == "" {
		return gate.DefaultRules(), nil
	}

	result, loadErrors := LoadRules(dir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}

	rs, err := gate.NewRuleSet(result.Rules)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeRuleSet, Message: err.Error()}
	}
	return rs, nil
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
