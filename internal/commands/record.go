package commands

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gaborage/go-kintone/kintone/record"
)

// RecordOptions holds the flags of the record commands
type RecordOptions struct {
	App         uint64
	ID          uint64
	Query       string
	Fields      []string
	All         bool
	PageSize    uint64
	Concurrency int
	Data        string
	UpdateKey   string
	Revision    int64
	RetrySafe   bool
}

// NewRecordCommand creates the record command group
func NewRecordCommand(global *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Read and write app records",
	}

	cmd.AddCommand(
		newRecordGetCommand(global),
		newRecordListCommand(global),
		newRecordAddCommand(global),
		newRecordUpdateCommand(global),
	)

	return cmd
}

func newRecordGetCommand(global *GlobalOptions) *cobra.Command {
	opts := &RecordOptions{}

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print one record as JSON",
		Example: `  kintone record get --app 12 --id 3`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := global.connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			resp, err := record.GetRecord(opts.App, opts.ID).Send(cmd.Context(), s.client)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Record)
		},
	}

	cmd.Flags().Uint64VarP(&opts.App, "app", "a", 0, "App ID")
	cmd.Flags().Uint64Var(&opts.ID, "id", 0, "Record ID")
	_ = cmd.MarkFlagRequired("app")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

type recordList struct {
	Records    []record.Record `json:"records"`
	TotalCount *uint64         `json:"totalCount,omitempty"`
}

func newRecordListCommand(global *GlobalOptions) *cobra.Command {
	opts := &RecordOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print records matching a query",
		Long: `Prints records matching a query as JSON.

With --all every matching record is fetched page by page and --query is a
condition only: ordering, limit and offset are managed by the command.`,
		Example: `  # First page of open tasks
  kintone record list --app 12 --query 'status in ("Open") limit 100'

  # Every record, three pages in flight
  kintone record list --app 12 --all --fields title,status --concurrency 3`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := global.connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			if opts.All {
				resp, err := record.GetAllRecords(opts.App).
					Fields(opts.Fields...).
					Condition(opts.Query).
					PageSize(opts.PageSize).
					Concurrency(opts.Concurrency).
					Send(cmd.Context(), s.client)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), recordList{Records: resp.Records, TotalCount: &resp.TotalCount})
			}

			resp, err := record.GetRecords(opts.App).
				Fields(opts.Fields...).
				Query(opts.Query).
				TotalCount(true).
				Send(cmd.Context(), s.client)
			if err != nil {
				return err
			}
			out := recordList{Records: resp.Records}
			if total, ok := resp.Total(); ok {
				out.TotalCount = &total
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().Uint64VarP(&opts.App, "app", "a", 0, "App ID")
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "kintone query")
	cmd.Flags().StringSliceVarP(&opts.Fields, "fields", "f", nil, "Field codes to return")
	cmd.Flags().BoolVar(&opts.All, "all", false, "Fetch every matching record")
	cmd.Flags().Uint64Var(&opts.PageSize, "page-size", record.MaxPageSize, "Records per page with --all")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 1, "Pages in flight with --all")
	_ = cmd.MarkFlagRequired("app")

	return cmd
}

func newRecordAddCommand(global *GlobalOptions) *cobra.Command {
	opts := &RecordOptions{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a record",
		Long: `Adds a record given as a JSON object of field codes to {"value": ...}.
The data may be inline JSON, @file or @- for standard input.`,
		Example: `  kintone record add --app 12 --data '{"title": {"value": "Hello"}}'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rec record.Record
			if err := readJSONArg(cmd, opts.Data, &rec); err != nil {
				return err
			}

			s, err := global.connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			req := record.AddRecord(opts.App).Record(rec)
			if opts.RetrySafe {
				req.RetrySafe()
			}
			resp, err := req.Send(cmd.Context(), s.client)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().Uint64VarP(&opts.App, "app", "a", 0, "App ID")
	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "Record JSON, @file or @-")
	cmd.Flags().BoolVar(&opts.RetrySafe, "retry-safe", false, "Retry on transient failures with an idempotency key")
	_ = cmd.MarkFlagRequired("app")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func newRecordUpdateCommand(global *GlobalOptions) *cobra.Command {
	opts := &RecordOptions{}

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a record by ID or unique key",
		Example: `  kintone record update --app 12 --id 3 --revision 4 --data '{"title": {"value": "Bye"}}'
  kintone record update --app 12 --key code=A-001 --data @changes.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rec record.Record
			if err := readJSONArg(cmd, opts.Data, &rec); err != nil {
				return err
			}

			req := record.UpdateRecord(opts.App).Record(rec)
			if cmd.Flags().Changed("revision") {
				req.Revision(opts.Revision)
			}
			if opts.ID != 0 {
				req.ID(opts.ID)
			}
			if opts.UpdateKey != "" {
				field, value, ok := strings.Cut(opts.UpdateKey, "=")
				if !ok {
					return errors.New("--key must be field=value")
				}
				req.UpdateKey(field, value)
			}
			if opts.RetrySafe {
				req.RetrySafe()
			}

			s, err := global.connect(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			resp, err := req.Send(cmd.Context(), s.client)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().Uint64VarP(&opts.App, "app", "a", 0, "App ID")
	cmd.Flags().Uint64Var(&opts.ID, "id", 0, "Record ID")
	cmd.Flags().StringVar(&opts.UpdateKey, "key", "", "Unique key as field=value")
	cmd.Flags().Int64Var(&opts.Revision, "revision", -1, "Fail unless the record is at this revision")
	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "Changed fields JSON, @file or @-")
	cmd.Flags().BoolVar(&opts.RetrySafe, "retry-safe", false, "Retry on transient failures with an idempotency key")
	_ = cmd.MarkFlagRequired("app")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}
