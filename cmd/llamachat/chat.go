package main

import (
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"llamachat/internal/tui"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a model in the terminal",
		Long: "Opens a full-screen chat. Enter sends, Esc stops the running reply, Ctrl+C quits.\n" +
			"Older turns are summarized automatically once the history is full.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			// logs would draw over the screen unless they go to a file
			a, err := newApp(cfg, io.Discard)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if err := a.mgr.EnsureModel(ctx, ""); err != nil {
				return err
			}
			release, err := a.mgr.Acquire(ctx)
			if err != nil {
				return err
			}
			defer release()

			_, conv := a.mgr.LocalConversation()
			title := ""
			if cur := a.mgr.Snapshot().CurrentModel; cur != nil {
				title = filepath.Base(cur.Path)
			}
			return tui.Run(ctx, conv, tui.Options{
				Title:         title,
				FillRatio:     a.mgr.FillRatio,
				Markdown:      !plain,
				FrameInterval: cfg.Server.StreamInterval(),
			})
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Show replies as plain text instead of rendered markdown")
	return cmd
}
