package commands

import (
	"github.com/spf13/cobra"

	"github.com/gaborage/go-kintone/kintone"
	"github.com/gaborage/go-kintone/kintone/space"
)

// CommentOptions holds the flags of the space comment command
type CommentOptions struct {
	Space          uint64
	Thread         uint64
	Text           string
	Mentions       []string
	Files          []string
	IdempotencyKey string
}

// NewSpaceCommand creates the space command group
func NewSpaceCommand(global *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "space",
		Short: "Post to space threads",
	}

	cmd.AddCommand(newSpaceCommentCommand(global))

	return cmd
}

func newSpaceCommentCommand(global *GlobalOptions) *cobra.Command {
	opts := &CommentOptions{}

	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Post a comment in a space thread",
		Example: `  kintone space comment --space 3 --thread 9 --text "Released" --mention alice
  kintone space comment --space 3 --thread 9 --file $(kintone file upload notes.pdf)`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			comment := space.ThreadComment{Text: opts.Text}
			for _, code := range opts.Mentions {
				comment.Mentions = append(comment.Mentions, kintone.Entity{Type: kintone.EntityUser, Code: code})
			}
			for _, key := range opts.Files {
				comment.Files = append(comment.Files, space.ThreadCommentFile{FileKey: key})
			}

			s, err := global.connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			req := space.AddThreadComment(opts.Space, opts.Thread, comment)
			if opts.IdempotencyKey != "" {
				req.IdempotencyKey(opts.IdempotencyKey)
			}
			resp, err := req.Send(cmd.Context(), s.client)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().Uint64Var(&opts.Space, "space", 0, "Space ID")
	cmd.Flags().Uint64Var(&opts.Thread, "thread", 0, "Thread ID")
	cmd.Flags().StringVarP(&opts.Text, "text", "t", "", "Comment text")
	cmd.Flags().StringSliceVar(&opts.Mentions, "mention", nil, "User codes to mention")
	cmd.Flags().StringSliceVar(&opts.Files, "file", nil, "File keys to attach")
	cmd.Flags().StringVar(&opts.IdempotencyKey, "idempotency-key", "", "Key that makes the post safe to retry")
	_ = cmd.MarkFlagRequired("space")
	_ = cmd.MarkFlagRequired("thread")

	return cmd
}
