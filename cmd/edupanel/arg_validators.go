package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func requireAtLeastArgs(min int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < min {
			return errors.New(message)
		}
		return nil
	}
}

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != count {
			return errors.New(message)
		}
		return nil
	}
}

func requireResource(cmd *cobra.Command, args []string) error {
	return requireExactlyArgs(1, "resource is required")(cmd, args)
}

func requireResourceAndID(cmd *cobra.Command, args []string) error {
	return requireExactlyArgs(2, "resource and id are required")(cmd, args)
}

func requireResourceAndIDs(cmd *cobra.Command, args []string) error {
	return requireAtLeastArgs(2, "resource and at least one id are required")(cmd, args)
}
