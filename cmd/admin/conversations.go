package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chatserver/services"
)

func newConversationsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Inspect and maintain conversations",
	}
	cmd.AddCommand(
		newListCmd(e),
		newDeleteCmd(e),
		newRetitleCmd(e),
	)
	return cmd
}

func newListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every conversation id and title",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withStore(cmd.Context(), func(store services.MessageStore) error {
				convs, err := store.ListConversations(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTITLE")
				for _, c := range convs {
					fmt.Fprintf(w, "%d\t%s\n", c.ID, c.Title)
				}
				return w.Flush()
			})
		},
	}
}

func newDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation and all of its turns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid conversation id %q", args[0])
			}
			return e.withStore(cmd.Context(), func(store services.MessageStore) error {
				if err := store.DeleteConversation(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted conversation %d\n", id)
				return nil
			})
		},
	}
}

func newRetitleCmd(e *env) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "retitle",
		Short: "Recompute every title from the conversation's first turn",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withStore(cmd.Context(), func(store services.MessageStore) error {
				conversations := services.NewConversationService(store, e.log)
				n, err := services.NewBatchProcessor(store, conversations, concurrency, e.log).RetitleAll(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "retitled %d conversations\n", n)
				return err
			})
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "conversations processed in parallel")
	return cmd
}
