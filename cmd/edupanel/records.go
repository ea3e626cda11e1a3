package main

import (
	"errors"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"edupanel/internal/api"
	"edupanel/internal/config"
)

func newListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		search string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list <resource>",
		Short: "List records of a resource",
		Args:  requireResource,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				query := url.Values{}
				setIfNotEmpty(query, "search", search)
				if limit > 0 {
					query.Set("limit", intToString(limit))
				}
				if offset > 0 {
					query.Set("offset", intToString(offset))
				}

				page, err := client.ListRecords(cmd.Context(), args[0], query)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(page.Records)
				}
				return writeRecordList(page)
			})
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "case-insensitive text search")
	cmd.Flags().IntVar(&limit, "limit", 0, "limit results")
	cmd.Flags().IntVar(&offset, "offset", 0, "offset results")

	return cmd
}

func newShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <resource> <id>",
		Short: "Show one record",
		Args:  requireResourceAndID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				rec, err := client.GetRecord(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(rec)
				}
				return writeRecordDetail(rec)
			})
		},
	}
}

type writeCmdOptions struct {
	fields  []string
	files   []string
	version int
}

func bindWriteFlags(cmd *cobra.Command, opts *writeCmdOptions) {
	cmd.Flags().StringArrayVar(&opts.fields, "field", nil, "field value as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.files, "file", nil, "attachment as field=path (repeatable)")
}

func newCreateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	opts := &writeCmdOptions{}
	cmd := &cobra.Command{
		Use:   "create <resource>",
		Short: "Create a record, uploading its attachments",
		Args:  requireResource,
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, files, err := parseWriteOptions(opts)
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				rec, err := client.CreateRecord(cmd.Context(), args[0], fields, files)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(rec)
				}
				return writePlain("%v\n", rec["id"])
			})
		},
	}

	bindWriteFlags(cmd, opts)
	return cmd
}

func newUpdateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	opts := &writeCmdOptions{}
	cmd := &cobra.Command{
		Use:   "update <resource> <id>",
		Short: "Update a record; uploaded files replace the old ones",
		Args:  requireResourceAndID,
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, files, err := parseWriteOptions(opts)
			if err != nil {
				return err
			}
			if len(fields) == 0 && len(files) == 0 {
				return errors.New("no fields to update")
			}
			return withClient(cfg, func(client *api.Client) error {
				rec, err := client.UpdateRecord(cmd.Context(), args[0], args[1], opts.version, fields, files)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(rec)
				}
				return writePlain("%s\n", args[1])
			})
		},
	}

	bindWriteFlags(cmd, opts)
	cmd.Flags().IntVar(&opts.version, "version", 0, "expected record version (0 skips the check)")
	return cmd
}

func newDeleteCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <resource> <id> [<id>...]",
		Short: "Delete records and their files",
		Args:  requireResourceAndIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				responses := make([]api.DeleteResponse, 0, len(args)-1)
				for _, id := range args[1:] {
					resp, err := client.DeleteRecord(cmd.Context(), args[0], id)
					if err != nil {
						return err
					}
					responses = append(responses, resp)
				}
				if *jsonOutput {
					return writeJSON(responses)
				}
				ids := make([]string, 0, len(responses))
				for _, resp := range responses {
					ids = append(ids, resp.ID)
				}
				return writePlain("%s\n", strings.Join(ids, ","))
			})
		},
	}
}

func parseWriteOptions(opts *writeCmdOptions) (map[string]string, []api.UploadFile, error) {
	fields, err := parseFieldFlags(opts.fields)
	if err != nil {
		return nil, nil, err
	}
	files, err := parseFileFlags(opts.files)
	if err != nil {
		return nil, nil, err
	}
	return fields, files, nil
}
