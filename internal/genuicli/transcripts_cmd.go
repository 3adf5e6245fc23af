package genuicli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/genui-bridge/internal/transcript"
)

var transcriptsCmd = &cobra.Command{
	Use:     "transcripts",
	Aliases: []string{"transcript"},
	Short:   "List recorded transcripts",
	Run: func(cmd *cobra.Command, args []string) {
		st, err := transcript.Open(transcriptsPath)
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		defer st.Close()
		list, err := st.List()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		if outputFormat == "json" {
			if err := printJSON(list); err != nil {
				exitWithError(cmd, err)
			}
			return
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No transcripts recorded.")
			return
		}
		tw := newTable()
		fmt.Fprintln(tw, "ID\tSOURCE\tOUTCOME\tTOKENS\tPATCHES\tFAILED\tSIZE\tRECORDED")
		for _, t := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
				shortID(t.ID), t.Source, t.Outcome, t.Tokens, t.Patches, t.PatchErrors,
				byteSize(t.Bytes), relativeTime(t.CreatedAt))
		}
		flushTable(tw)
	},
}

var transcriptsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a transcript's metadata, or its raw capture with --raw",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		st, err := transcript.Open(transcriptsPath)
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		defer st.Close()
		t, err := st.Get(args[0])
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			_, _ = cmd.OutOrStdout().Write(t.Raw)
			return
		}
		if err := printJSON(t); err != nil {
			exitWithError(cmd, err)
		}
	},
}

var transcriptsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a transcript",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		st, err := transcript.Open(transcriptsPath)
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		defer st.Close()
		t, err := st.Get(args[0])
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		if err := st.Delete(t.ID); err != nil {
			exitWithError(cmd, err)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted transcript %s.\n", shortID(t.ID))
	},
}

func init() {
	transcriptsShowCmd.Flags().Bool("raw", false, "Write the raw capture bytes")
	transcriptsCmd.AddCommand(transcriptsShowCmd)
	transcriptsCmd.AddCommand(transcriptsRmCmd)
}
