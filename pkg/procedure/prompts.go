package procedure

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grovetools/bridge/errors"
)

// builtinPrompts maps prompt references to their default instruction
// text. A file named <reference>.md in the prompts directory replaces
// the built-in text.
var builtinPrompts = map[string]string{
	"builder": `Implement the requested change in the current workspace.
Work incrementally, keep the change minimal, and follow the existing
conventions of the codebase. Commit nothing; leave the working tree for
review.`,

	"verifier": `Verify the change made in the previous step. Run the
project's tests and any relevant build or lint commands. Report what
passed and what failed. Fix failures you introduced; do not widen the
scope of the change.`,

	"reviewer": `Review the change in the working tree as a careful
reviewer would. Look for defects, missed edge cases, and deviations
from the surrounding code style. Apply fixes for anything you find.`,

	"summarizer": `Summarize the work completed in this session for the
issue tracker. State what was changed, how it was verified, and
anything left open. Be concise; this is the final visible response.`,

	"answerer": `Answer the question using the repository as reference.
Do not modify any files. Cite the relevant files and line numbers in
your answer.`,

	"documenter": `Apply the requested documentation change. Only touch
documentation, comments, and markdown; do not change code behavior.`,

	"transient": `Perform the requested task using the available tools.
Do not modify repository files; this is a read-and-report task.`,

	"scoper": `The requirements are unclear or this work needs a plan
before implementation. Investigate the codebase, clarify the scope, and
produce a concrete implementation plan with the files involved and the
order of changes. Do not implement anything yet.`,

	"debugger": `Reproduce the reported bug. Find a reliable reproduction,
identify the root cause, and report both. Do not apply a fix yet; the
fix proceeds only after approval.`,

	"orchestrator": `This work is too large for one session. Decompose it
into independent sub-tasks, delegate each to a sub-agent session, and
integrate their results.`,
}

// SubroutinePrompt resolves the instruction text for a subroutine. A
// file <promptsDir>/<reference>.md overrides the built-in text; an
// unknown reference with no file is a catalog defect.
func SubroutinePrompt(promptsDir string, sub *Subroutine) (string, error) {
	if promptsDir != "" {
		path := filepath.Join(promptsDir, sub.PromptReference+".md")
		if data, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(data)), nil
		}
	}
	text, ok := builtinPrompts[sub.PromptReference]
	if !ok {
		return "", errors.New(errors.ErrCodeProcedureNotFound,
			fmt.Sprintf("no prompt for reference '%s'", sub.PromptReference)).
			WithDetail("subroutine", sub.Name)
	}
	return text, nil
}
