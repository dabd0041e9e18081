package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chimera/internal/api"
)

func TestScript_AcceptedShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "lambda tool binding",
			body: `greeter = Tool(run = lambda args: "Hello, " + args.get("name", "world"), description = "greets")`,
		},
		{
			name: "def plus binding",
			body: `def _run(args):
    total = args["a"] + args["b"]
    ctx.log("adding %s and %s" % (args["a"], args["b"]))
    return total

adder = Tool(run = _run, description = "adds two numbers")`,
		},
		{
			name: "load statement",
			body: `load("math.star", "sqrt")

root = Tool(run = lambda args: sqrt(args["x"]))`,
		},
		{
			name: "multiple defs before the binding",
			body: `def helper(x):
    return x * 2

def _run(args):
    return helper(args["n"])

doubler = Tool(run = _run)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, Script(tt.body, nil))
		})
	}
}

func TestScript_RejectedShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{
			name:    "bare top-level expression",
			body:    `print("hi")`,
			wantErr: api.ErrInvalidStructure,
		},
		{
			name:    "top-level for loop",
			body:    "for i in range(3):\n    pass",
			wantErr: api.ErrInvalidStructure,
		},
		{
			name:    "plain assignment without Tool call",
			body:    `x = 42`,
			wantErr: api.ErrInvalidStructure,
		},
		{
			name:    "assignment to a non-Tool call",
			body:    `x = build()`,
			wantErr: api.ErrInvalidStructure,
		},
		{
			name:    "augmented assignment",
			body:    "x += 1",
			wantErr: api.ErrInvalidStructure,
		},
		{
			name:    "unparseable body",
			body:    "def broken(:",
			wantErr: api.ErrInvalidStructure,
		},
		{
			name:    "denied module load",
			body:    "load(\"os.star\", \"getenv\")\n\nt = Tool(run = lambda args: getenv(\"HOME\"))",
			wantErr: api.ErrPolicyViolation,
		},
		{
			name:    "denied function call inside def",
			body:    "def _run(args):\n    return eval(args[\"expr\"])\n\nt = Tool(run = _run)",
			wantErr: api.ErrPolicyViolation,
		},
		{
			name:    "denied attribute access",
			body:    "def _run(args):\n    return os.system(args[\"cmd\"])\n\nt = Tool(run = _run)",
			wantErr: api.ErrPolicyViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Script(tt.body, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestScript_PolicyErrorsCarryLine(t *testing.T) {
	body := "def _run(args):\n    return eval(args[\"expr\"])\n\nt = Tool(run = _run)"
	err := Script(body, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestPolicyFromRules(t *testing.T) {
	rules := []api.PolicyRule{
		{Action: api.PolicyActionAllow, Subject: api.PolicySubjectModule, Pattern: "math"},
		{Action: api.PolicyActionDeny, Subject: api.PolicySubjectModule, Pattern: "net"},
		{Action: api.PolicyActionDeny, Subject: api.PolicySubjectFunction, Pattern: "fetch"},
		{Action: api.PolicyActionDeny, Subject: api.PolicySubjectAttribute, Pattern: "time.sleep"},
		// A stored allow can never reopen a built-in deny.
		{Action: api.PolicyActionAllow, Subject: api.PolicySubjectModule, Pattern: "os"},
	}
	p := PolicyFromRules(rules)

	assert.NoError(t, p.CheckModule("math"))
	assert.ErrorIs(t, p.CheckModule("net"), api.ErrPolicyViolation)
	assert.ErrorIs(t, p.CheckModule("os"), api.ErrPolicyViolation)
	// Closed allow list: an unlisted module is rejected once any allow exists.
	assert.ErrorIs(t, p.CheckModule("json"), api.ErrPolicyViolation)

	assert.ErrorIs(t, p.CheckFunction("fetch"), api.ErrPolicyViolation)
	assert.ErrorIs(t, p.CheckFunction("eval"), api.ErrPolicyViolation)
	assert.NoError(t, p.CheckFunction("len"))

	assert.ErrorIs(t, p.CheckAttribute("time.sleep"), api.ErrPolicyViolation)
	assert.ErrorIs(t, p.CheckAttribute("os.system"), api.ErrPolicyViolation)
	assert.NoError(t, p.CheckAttribute("string.upper"))
}

func TestDefaultPolicy_OpenModuleList(t *testing.T) {
	p := DefaultPolicy()
	// Without allow rules any non-denied module passes.
	assert.NoError(t, p.CheckModule("math"))
	assert.ErrorIs(t, p.CheckModule("subprocess"), api.ErrPolicyViolation)
}
