package genuicli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/genui-bridge/internal/sessions"
	"github.com/oremus-labs/genui-bridge/internal/store"
	"github.com/oremus-labs/genui-bridge/internal/upstream"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session"},
	Short:   "Inspect and control sessions on a bridge server",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		q := url.Values{}
		if status != "" {
			q.Set("status", status)
		}
		if limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}
		path := "/sessions"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		var resp struct {
			Sessions []store.Session `json:"sessions"`
		}
		if err := client.GetJSON(path, &resp); err != nil {
			exitWithError(cmd, err)
			return
		}
		if outputFormat == "json" {
			if err := printJSON(resp.Sessions); err != nil {
				exitWithError(cmd, err)
			}
			return
		}
		if len(resp.Sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
			return
		}
		tw := newTable()
		fmt.Fprintln(tw, "ID\tSTATUS\tSOURCE\tTOKENS\tPATCHES\tFAILED\tUPDATED")
		for _, s := range resp.Sessions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				shortID(s.ID), s.Status, s.Source, s.Tokens, s.Patches, s.PatchErrors, relativeTime(s.UpdatedAt))
		}
		flushTable(tw)
	},
}

var sessionsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var sess store.Session
		if err := client.GetJSON("/sessions/"+url.PathEscape(args[0]), &sess); err != nil {
			exitWithError(cmd, err)
			return
		}
		if outputFormat == "json" {
			if err := printJSON(sess); err != nil {
				exitWithError(cmd, err)
			}
			return
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ID:        %s\n", sess.ID)
		fmt.Fprintf(out, "Status:    %s\n", sess.Status)
		if sess.State != "" {
			fmt.Fprintf(out, "State:     %s\n", sess.State)
		}
		fmt.Fprintf(out, "Source:    %s\n", sess.Source)
		fmt.Fprintf(out, "Tokens:    %d\n", sess.Tokens)
		fmt.Fprintf(out, "Patches:   %d (%d failed)\n", sess.Patches, sess.PatchErrors)
		fmt.Fprintf(out, "Bytes:     %s\n", byteSize(sess.Bytes))
		fmt.Fprintf(out, "Created:   %s\n", relativeTime(sess.CreatedAt))
		fmt.Fprintf(out, "Updated:   %s\n", relativeTime(sess.UpdatedAt))
		if sess.Error != "" {
			fmt.Fprintf(out, "Error:     %s\n", sess.Error)
		}
	},
}

var sessionsStartCmd = &cobra.Command{
	Use:   "start <prompt>",
	Short: "Start a session against the configured upstream model",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		model, _ := cmd.Flags().GetString("model")
		system, _ := cmd.Flags().GetString("system")
		tokenPatches, _ := cmd.Flags().GetBool("token-patches")
		watch, _ := cmd.Flags().GetBool("watch")

		req := sessions.StartRequest{
			Request: upstream.Request{
				Model:  model,
				Prompt: strings.Join(args, " "),
				System: system,
			},
			TokenPatches: tokenPatches,
		}
		var resp struct {
			Session store.Session `json:"session"`
			Queued  bool          `json:"queued"`
		}
		if err := client.PostJSON("/sessions", req, &resp); err != nil {
			exitWithError(cmd, err)
			return
		}
		if outputFormat == "json" && !watch {
			if err := printJSON(resp); err != nil {
				exitWithError(cmd, err)
			}
			return
		}
		mode := "started"
		if resp.Queued {
			mode = "queued"
		}
		printErrorLine("Session %s %s.", resp.Session.ID, mode)
		if watch {
			if err := watchSession(cmd, client, resp.Session.ID); err != nil {
				exitWithError(cmd, err)
			}
			return
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Session.ID)
	},
}

var sessionsWatchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Follow a session's tokens and state changes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		if err := watchSession(cmd, client, args[0]); err != nil {
			exitWithError(cmd, err)
		}
	},
}

var sessionsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a running session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var resp map[string]interface{}
		if err := client.PostJSON("/sessions/"+url.PathEscape(args[0])+"/cancel", nil, &resp); err != nil {
			exitWithError(cmd, err)
			return
		}
		if outputFormat == "json" {
			if err := printJSON(resp); err != nil {
				exitWithError(cmd, err)
			}
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s.\n", args[0])
	},
}

var sessionsOutlineCmd = &cobra.Command{
	Use:   "outline <id>",
	Short: "Print the session's current tree as a text outline",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var text string
		if err := client.GetJSON("/sessions/"+url.PathEscape(args[0])+"/outline", &text); err != nil {
			exitWithError(cmd, err)
			return
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
	},
}

var sessionsTreeCmd = &cobra.Command{
	Use:   "tree <id>",
	Short: "Print the session's current tree",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		path := "/sessions/" + url.PathEscape(args[0]) + "/tree"
		if v, _ := cmd.Flags().GetBool("validate"); v {
			path += "?validate=true"
		}
		var resp map[string]interface{}
		if err := client.GetJSON(path, &resp); err != nil {
			exitWithError(cmd, err)
			return
		}
		if err := printJSON(resp); err != nil {
			exitWithError(cmd, err)
		}
	},
}

// watchSession prints tokens to stdout and lifecycle events to stderr until
// the session reaches a finished status.
func watchSession(cmd *cobra.Command, client *Client, id string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	path := "/sessions/" + url.PathEscape(id) + "/events"
	var final string
	err := client.StreamEvents(ctx, path, func(evt EventEnvelope) bool {
		done, status := describeEvent(out, evt)
		if done {
			final = status
		}
		return !done
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	if final != "" {
		fmt.Fprintln(out)
		printErrorLine("Session %s %s.", shortID(id), final)
		if final == string(store.SessionFailed) {
			return fmt.Errorf("session %s failed", id)
		}
	}
	return nil
}

// describeEvent renders one session event and reports whether the session
// has finished.
func describeEvent(out io.Writer, evt EventEnvelope) (bool, string) {
	switch evt.Type {
	case "session.token":
		var p tokenPayload
		if json.Unmarshal(evt.Data, &p) == nil {
			fmt.Fprint(out, p.Text)
		}
	case "session.patch_error":
		var p patchErrorPayload
		if json.Unmarshal(evt.Data, &p) == nil {
			printErrorLine("patch failed (%s): %s", p.Reason, p.Error)
		}
	case "session.tree":
		if outputFormat == "json" {
			var p treePayload
			if json.Unmarshal(evt.Data, &p) == nil {
				printErrorLine("tree v%d", p.Version)
			}
		}
	case "session.state":
		var p statePayload
		if json.Unmarshal(evt.Data, &p) != nil {
			return false, ""
		}
		if store.SessionStatus(p.Status).Finished() {
			return true, p.Status
		}
	}
	return false, ""
}

func init() {
	sessionsListCmd.Flags().String("status", "", "Filter by status")
	sessionsListCmd.Flags().Int("limit", 25, "Maximum sessions to list")
	sessionsStartCmd.Flags().String("model", "", "Model name passed to the upstream")
	sessionsStartCmd.Flags().String("system", "", "System prompt")
	sessionsStartCmd.Flags().Bool("token-patches", false, "Parse token text as JSONL patch operations")
	sessionsStartCmd.Flags().Bool("watch", false, "Follow the session after starting it")
	sessionsTreeCmd.Flags().Bool("validate", false, "Include a validation report")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsGetCmd)
	sessionsCmd.AddCommand(sessionsStartCmd)
	sessionsCmd.AddCommand(sessionsWatchCmd)
	sessionsCmd.AddCommand(sessionsCancelCmd)
	sessionsCmd.AddCommand(sessionsOutlineCmd)
	sessionsCmd.AddCommand(sessionsTreeCmd)
}
