package genuicli

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/genui-bridge/internal/jsonval"
	"github.com/oremus-labs/genui-bridge/internal/transcript"
)

var replayCmd = &cobra.Command{
	Use:   "replay <id>",
	Short: "Re-run a recorded transcript through the orchestrator",
	Long: `Replay a transcript recorded with 'genui render --record'. The recorded chunk
size is reused unless --chunk-size is set. With --check the replayed tree must
equal the recorded one.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		st, err := transcript.Open(transcriptsPath)
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		t, err := st.Get(args[0])
		st.Close()
		if err != nil {
			exitWithError(cmd, err)
			return
		}

		opts, err := captureFlags(cmd)
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		if opts.ChunkSize == 0 {
			opts.ChunkSize = t.ChunkSize
		}
		if !cmd.Flags().Changed("token-patches") {
			opts.TokenPatches = t.TokenPatches
		}
		tokens, err := tokenWriter(cmd)
		if err != nil {
			exitWithError(cmd, err)
			return
		}

		res, err := consumeCapture(cmd.Context(), bytes.NewReader(t.Raw), opts, tokens)
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		if err := emitResult(cmd, res); err != nil {
			exitWithError(cmd, err)
			return
		}

		check, _ := cmd.Flags().GetBool("check")
		if !check {
			return
		}
		if err := compareReplay(t, res); err != nil {
			exitWithError(cmd, err)
			return
		}
		printErrorLine("Replay of %s matches the recorded tree.", shortID(t.ID))
	},
}

func init() {
	addCaptureFlags(replayCmd, "never")
	replayCmd.Flags().Bool("check", false, "Fail when the replayed tree differs from the recorded one")
}

// compareReplay checks a replay against the recorded outcome.
func compareReplay(t *transcript.Transcript, res captureResult) error {
	recorded, err := jsonval.Parse(t.Tree)
	if err != nil {
		return fmt.Errorf("recorded tree: %w", err)
	}
	if !jsonval.Equal(recorded, res.Summary.Tree) {
		return fmt.Errorf("replayed tree differs from transcript %s", shortID(t.ID))
	}
	if res.Summary.Patches != t.Patches || res.Summary.PatchErrors != t.PatchErrors {
		return fmt.Errorf("replay applied %d patches (%d failed), transcript recorded %d (%d failed)",
			res.Summary.Patches, res.Summary.PatchErrors, t.Patches, t.PatchErrors)
	}
	return nil
}
