package main

import (
	"strings"

	"github.com/spf13/cobra"

	"edupanel/internal/api"
	"edupanel/internal/config"
)

func newResourcesCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "List the resources the server exposes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resources, err := client.ListResources(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resources)
				}
				for _, res := range resources {
					if err := writePlain("%s\n", formatResourceLine(res)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func formatResourceLine(res api.ResourceInfo) string {
	var files []string
	for _, att := range res.Attachments {
		name := att.Name
		if att.Multiple {
			name += "[]"
		}
		if att.Required {
			name += "*"
		}
		files = append(files, name)
	}
	line := res.Name
	if res.UniqueField != "" {
		line += " (unique " + res.UniqueField + ")"
	}
	if len(files) > 0 {
		line += " files: " + strings.Join(files, ", ")
	}
	return line
}
