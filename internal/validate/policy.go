// Package validate enforces chimera's structural discipline on stored
// bodies before anything executes: scripts must be import-plus-tool-class
// shaped and must not touch denied modules, functions, or attributes; SQL
// must be a single read-only statement. Validation is pure string and AST
// work; it never touches a database.
package validate

import (
	"fmt"

	"chimera/internal/api"
)

// Built-in deny lists. These always apply; registry policy rules extend
// them. Deny wins over allow on identical patterns, so a stored allow rule
// can never reopen a built-in deny.
var (
	defaultDenyModules = []string{
		"os", "sys", "subprocess", "importlib", "builtins",
		"pickle", "marshal", "shelve", "dill",
		"shutil", "pathlib", "tempfile", "glob", "io",
		"socket", "ctypes",
	}
	defaultDenyFunctions = []string{
		"eval", "exec", "compile", "execfile",
		"open", "input", "raw_input",
		"exit", "quit",
		"__import__",
	}
	defaultDenyAttributes = []string{
		"os.system", "os.popen", "os.remove", "os.unlink", "os.rmdir",
		"subprocess.run", "subprocess.call", "subprocess.Popen",
		"sys.exit", "shutil.rmtree",
	}
)

// Policy is the compiled rule set consulted by script validation.
type Policy struct {
	denyModules    map[string]bool
	allowModules   map[string]bool
	denyFunctions  map[string]bool
	denyAttributes map[string]bool
}

// DefaultPolicy compiles only the built-in deny lists.
func DefaultPolicy() *Policy {
	return PolicyFromRules(nil)
}

// PolicyFromRules compiles the built-in defaults plus stored rules.
// Allow rules for modules establish a closed allow-list: once any module
// allow rule exists, every non-denied import must appear in it.
func PolicyFromRules(rules []api.PolicyRule) *Policy {
	p := &Policy{
		denyModules:    make(map[string]bool),
		allowModules:   make(map[string]bool),
		denyFunctions:  make(map[string]bool),
		denyAttributes: make(map[string]bool),
	}
	for _, m := range defaultDenyModules {
		p.denyModules[m] = true
	}
	for _, f := range defaultDenyFunctions {
		p.denyFunctions[f] = true
	}
	for _, a := range defaultDenyAttributes {
		p.denyAttributes[a] = true
	}
	for _, r := range rules {
		switch {
		case r.Action == api.PolicyActionDeny && r.Subject == api.PolicySubjectModule:
			p.denyModules[r.Pattern] = true
		case r.Action == api.PolicyActionAllow && r.Subject == api.PolicySubjectModule:
			p.allowModules[r.Pattern] = true
		case r.Action == api.PolicyActionDeny && r.Subject == api.PolicySubjectFunction:
			p.denyFunctions[r.Pattern] = true
		case r.Action == api.PolicyActionDeny && r.Subject == api.PolicySubjectAttribute:
			p.denyAttributes[r.Pattern] = true
		}
		// Allow rules for functions and attributes have no closed-list
		// semantics; they only document intent and are kept out of the
		// compiled sets.
	}
	return p
}

// CheckModule validates one import target.
func (p *Policy) CheckModule(name string) error {
	if p.denyModules[name] {
		return fmt.Errorf("module %q is denied: %w", name, api.ErrPolicyViolation)
	}
	if len(p.allowModules) > 0 && !p.allowModules[name] {
		return fmt.Errorf("module %q is not on the allow list: %w", name, api.ErrPolicyViolation)
	}
	return nil
}

// CheckFunction validates one called function name.
func (p *Policy) CheckFunction(name string) error {
	if p.denyFunctions[name] {
		return fmt.Errorf("function %q is denied: %w", name, api.ErrPolicyViolation)
	}
	return nil
}

// CheckAttribute validates one module.attribute access.
func (p *Policy) CheckAttribute(name string) error {
	if p.denyAttributes[name] {
		return fmt.Errorf("attribute %q is denied: %w", name, api.ErrPolicyViolation)
	}
	return nil
}
