package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ckptd/ckpt/internal/orchestrator"
)

// maxEventBytes bounds how much of stdin a hook invocation will read.
const maxEventBytes = 10 << 20

var hookCmd = &cobra.Command{
	Use:   "hook [event]",
	Short: "Handle a hook event from stdin",
	Long: `Read a JSON hook event from stdin and dispatch it. The event kind is
taken from the hook_event_name field, or from the optional positional
argument when the field is absent:

  PreToolUse   checkpoint before a risky mutation
  PostToolUse  record the mutation outcome on the latest checkpoint
  Stop         optional end-of-session checkpoint

Checkpointing is a safety net: handler failures are logged and the exit
code stays zero so the guarded mutation is never blocked. Only malformed
input exits non-zero (status 2).`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := io.ReadAll(io.LimitReader(os.Stdin, maxEventBytes))
		if err != nil {
			fmt.Fprintf(os.Stderr, "ckpt hook: read stdin: %v\n", err)
			os.Exit(2)
		}

		var ev orchestrator.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			fmt.Fprintf(os.Stderr, "ckpt hook: malformed event JSON: %v\n", err)
			os.Exit(2)
		}

		kind := ev.HookEventName
		if len(args) == 1 {
			kind = args[0]
		}
		if kind == "" {
			fmt.Fprintln(os.Stderr, "ckpt hook: event kind missing (no hook_event_name field and no argument)")
			os.Exit(2)
		}

		a := newApp()
		ctx := cmd.Context()
		switch kind {
		case "PreToolUse":
			_ = a.orch.HandleBeforeMutation(ctx, ev)
		case "PostToolUse":
			_ = a.orch.HandleAfterMutation(ctx, ev)
		case "Stop":
			_ = a.orch.HandleStop(ctx, ev)
		default:
			// Unknown events are ignored so new hook kinds never break us.
			a.log.Debug().Str("event", kind).Msg("ignoring unknown hook event")
		}
	},
}

func init() {
	rootCmd.AddCommand(hookCmd)
}
