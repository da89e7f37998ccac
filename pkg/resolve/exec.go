package resolve

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/jmarlow/cookery/pkg/errors"
	"github.com/jmarlow/cookery/pkg/recipe"
)

// ExecResolver delegates resolution to an external solver process, for
// setups that run a real constraint solver instead of the greedy local
// strategy.
//
// Protocol: the request document is written to the solver's stdin as JSON
// and the solver answers on stdout.
//
//	exit 0 — stdout holds the resolved graph (same wire form as EncodeGraph)
//	exit 2 — stdout holds a conflict document: {"entries": [...]}
//	other  — the solver itself failed; reported as RESOLVER_UNAVAILABLE
type ExecResolver struct {
	argv []string
}

// NewExecResolver builds a resolver around the given command line.
func NewExecResolver(argv []string) (*ExecResolver, error) {
	if len(argv) == 0 {
		return nil, errors.New(errors.ErrCodeResolverUnavailable, "external resolver command is empty")
	}
	return &ExecResolver{argv: argv}, nil
}

// Name implements Resolver.
func (r *ExecResolver) Name() string { return "exec:" + r.argv[0] }

// conflictExit is the solver exit code that signals a conflict document.
const conflictExit = 2

// execRequest is the JSON document written to the solver's stdin. The
// solver reads the recipe tree itself; the fingerprint lets it verify it
// sees the same tree state we scanned.
type execRequest struct {
	Package     string            `json:"package"`
	Constraints []string          `json:"constraints,omitempty"`
	Variant     map[string]string `json:"variant,omitempty"`
	RecipesPath string            `json:"recipes_path"`
	Fingerprint string            `json:"fingerprint"`
}

// Resolve implements Resolver.
func (r *ExecResolver) Resolve(ctx context.Context, req Request, cat *recipe.Catalog) (*Graph, error) {
	doc := execRequest{
		Package:     req.Package.String(),
		Variant:     req.Variant,
		RecipesPath: cat.Dir(),
		Fingerprint: cat.Fingerprint(),
	}
	for _, c := range req.Constraints {
		doc.Constraints = append(doc.Constraints, c.String())
	}
	input, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode resolver request")
	}

	cmd := exec.CommandContext(ctx, r.argv[0], r.argv[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr == nil {
		g, err := DecodeGraph(stdout.Bytes())
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeResolverUnavailable, err,
				"resolver %s returned a malformed graph", r.argv[0])
		}
		return g, nil
	}

	if exitErr, ok := runErr.(*exec.ExitError); ok && exitErr.ExitCode() == conflictExit {
		var conflict Conflict
		if err := json.Unmarshal(stdout.Bytes(), &conflict); err != nil || len(conflict.Entries) == 0 {
			return nil, errors.Wrap(errors.ErrCodeResolverUnavailable, err,
				"resolver %s signalled a conflict without a readable report", r.argv[0])
		}
		return nil, WrapConflict(&conflict)
	}

	detail := strings.TrimSpace(stderr.String())
	if detail == "" {
		detail = runErr.Error()
	}
	return nil, errors.Wrap(errors.ErrCodeResolverUnavailable, runErr,
		"resolver %s failed: %s", r.argv[0], detail)
}
