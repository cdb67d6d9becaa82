package cmd

import (
	"fmt"
	"io"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/chartwise/api/schemas"
	"github.com/xkilldash9x/chartwise/internal/assistant"
)

// userError carries a readable message while keeping the cause inspectable.
type userError struct {
	msg string
	err error
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Unwrap() error { return e.err }

func describe(err error) error {
	return &userError{msg: assistant.Describe(err), err: err}
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", out)
	return err
}

// writeReply prints the model's answer followed by its suggested actions.
func writeReply(w io.Writer, reply schemas.ModelReply) error {
	if _, err := fmt.Fprintln(w, reply.Response); err != nil {
		return err
	}
	if len(reply.Actions) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Suggested actions:")
	for i, a := range reply.Actions {
		target := a.Selector
		if target == "" {
			target = "no target"
		}
		fmt.Fprintf(w, "  %d. %s (%s %s)\n", i+1, a.Label, a.Type, target)
		if a.Description != "" && a.Description != a.Label {
			fmt.Fprintf(w, "     %s\n", a.Description)
		}
	}
	return nil
}
