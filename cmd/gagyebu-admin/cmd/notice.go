package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
)

func newNoticeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notice",
		Short: "Manage notices shown on the 공지사항 page",
	}
	cmd.AddCommand(newNoticeAddCmd(opts))
	cmd.AddCommand(newNoticeListCmd(opts))
	return cmd
}

func newNoticeAddCmd(opts *options) *cobra.Command {
	var (
		n           core.Notice
		contentFile string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Publish a notice",
		Long: `Publish a notice. Content is HTML and is rendered as-is.

Example:
  gagyebu-admin notice add --title "서버 점검 안내" --category 점검 \
    --date 2024-05-14 --content-file notice.html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if n.Date == "" {
				n.Date = time.Now().Format(core.DateLayout)
			}
			if contentFile != "" {
				data, err := os.ReadFile(contentFile)
				if err != nil {
					return fmt.Errorf("read content: %w", err)
				}
				n.Content = string(data)
			}
			if n.Content == "" {
				return errors.New("notice content is empty: pass --content or --content-file")
			}

			repo, err := opts.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			saved, err := repo.AddNotice(cmd.Context(), n)
			if err != nil {
				return fmt.Errorf("add notice: %w", err)
			}
			opts.logger.Info("Notice published", "notice_id", saved.ID, log.FieldDate, saved.Date)
			fmt.Fprintln(cmd.OutOrStdout(), saved.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&n.Title, "title", "", "notice title")
	cmd.Flags().StringVar(&n.Category, "category", "안내", "notice category")
	cmd.Flags().StringVar(&n.Date, "date", "", "publish date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&n.Content, "content", "", "notice content (HTML)")
	cmd.Flags().StringVar(&contentFile, "content-file", "", "read content from file")
	_ = cmd.MarkFlagRequired("title")
	cmd.MarkFlagsMutuallyExclusive("content", "content-file")
	return cmd
}

func newNoticeListCmd(opts *options) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notices, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := opts.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			all, err := repo.ListNotices(cmd.Context())
			if err != nil {
				return fmt.Errorf("list notices: %w", err)
			}
			notices := core.FilterNotices(all, query)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tCATEGORY\tTITLE\tID")
			for _, n := range notices {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.Date, n.Category, n.Title, n.ID)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "only notices whose title or category matches")
	return cmd
}
