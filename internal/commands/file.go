package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gaborage/go-kintone/kintone/file"
)

// FileOptions holds the flags of the file commands
type FileOptions struct {
	Name      string
	Output    string
	RetrySafe bool
}

// NewFileCommand creates the file command group
func NewFileCommand(global *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Upload and download attachments",
	}

	cmd.AddCommand(
		newFileUploadCommand(global),
		newFileDownloadCommand(global),
	)

	return cmd
}

func newFileUploadCommand(global *GlobalOptions) *cobra.Command {
	opts := &FileOptions{}

	cmd := &cobra.Command{
		Use:   "upload PATH",
		Short: "Upload a file and print its file key",
		Long: `Uploads a file and prints the temporary file key. The key must be
attached to a FILE field within three days.

Without --retry-safe the file is streamed from disk and never retried.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			name := opts.Name
			if name == "" {
				name = filepath.Base(path)
			}

			s, err := global.connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			var req *file.UploadRequest
			if opts.RetrySafe {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				req = file.Upload(name, content).RetrySafe()
			} else {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", path, err)
				}
				defer f.Close()
				req = file.UploadReader(name, f)
			}

			resp, err := req.Send(cmd.Context(), s.client)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.FileKey)
			return err
		},
	}

	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "File name sent to kintone (default base name of PATH)")
	cmd.Flags().BoolVar(&opts.RetrySafe, "retry-safe", false, "Buffer the file so the upload can be retried")

	return cmd
}

func newFileDownloadCommand(global *GlobalOptions) *cobra.Command {
	opts := &FileOptions{}

	cmd := &cobra.Command{
		Use:   "download FILE_KEY",
		Short: "Download an attachment",
		Example: `  kintone file download 20240101-abc --output report.pdf
  kintone file download 20240101-abc > report.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := global.connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			resp, err := file.Download(args[0]).Send(cmd.Context(), s.client)
			if err != nil {
				return err
			}

			if opts.Output == "" || opts.Output == "-" {
				_, err = cmd.OutOrStdout().Write(resp.Content)
				return err
			}
			if err := os.WriteFile(opts.Output, resp.Content, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", opts.Output, err)
			}
			s.log.Info().
				Str("file", opts.Output).
				Str("mime_type", resp.MimeType).
				Int("bytes", len(resp.Content)).
				Msg("file downloaded")
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Write to this path instead of standard output")

	return cmd
}
