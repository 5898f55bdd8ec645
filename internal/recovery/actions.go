package recovery

// Action is a remediation offered to the user or to automation.
type Action string

const (
	ActionRetry     Action = "retry"
	ActionSplitFile Action = "split_file"
	ActionViewGuide Action = "view_guide"
	ActionCopyFiles Action = "copy_files"
	ActionSkip      Action = "skip"
	ActionSupport   Action = "support"
)

// Actions returns the ordered remediation list for ce: retry when
// recoverable, the type-specific action, skip, and support only when the
// error is not recoverable.
func Actions(ce *ClassifiedError) []Action {
	var out []Action
	if ce.Recoverable {
		out = append(out, ActionRetry)
	}
	if a := policies[ce.Type].action; a != "" {
		out = append(out, a)
	}
	out = append(out, ActionSkip)
	if !ce.Recoverable {
		out = append(out, ActionSupport)
	}
	return out
}
