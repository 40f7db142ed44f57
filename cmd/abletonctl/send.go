package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/morezero/ableton-bridge/pkg/output"
	"github.com/morezero/ableton-bridge/pkg/registry"
	"github.com/morezero/ableton-bridge/pkg/repl"
)

var sendCmd = &cobra.Command{
	Use:   "send <command_type> [JSON_PARAMS]",
	Short: "Send one command and print the response",
	Long: `Send one command to the bridge and print the response envelope.
Exits non-zero when the bridge reports an error or cannot be reached.`,
	Example: `  abletonctl send get_session_info
  abletonctl send set_tempo '{"tempo": 120}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := ""
		if len(args) > 1 {
			raw = args[1]
		}
		params, err := repl.ParseParams(raw)
		if err != nil {
			return err
		}

		sender, closeFn, err := dial(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		resp, err := sender.Send(cmd.Context(), args[0], params)
		if err != nil {
			return fmt.Errorf("failed to send %s: %w", args[0], err)
		}
		fmt.Fprint(cmd.OutOrStdout(), output.Response(formatter, resp))
		if !resp.OK() {
			return errCommandFailed
		}
		return nil
	},
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive session",
	Long: `Start an interactive session. Stubs added in the REPL answer commands
locally before anything is sent, so a command can be tried out before the
host implements it. Type help for the list of verbs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sender, closeFn, err := dial(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		r := repl.New(repl.Options{
			Sender:    sender,
			Formatter: formatter,
			Out:       cmd.OutOrStdout(),
		})
		return r.Run(cmd.Context(), cmd.InOrStdin())
	},
}

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List the commands the bridge accepts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rows := repl.CommandRows(registry.Default())
		f := formatter
		if !cmd.Flags().Changed("output") {
			f = &output.TableFormatter{}
		}
		fmt.Fprint(cmd.OutOrStdout(), f.Format(rows))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(commandsCmd)
}
