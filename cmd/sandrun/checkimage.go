package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/sandrun/internal/appconfig"
	"pkt.systems/sandrun/sandbox"
)

func newCheckImageCmd() *cobra.Command {
	var cfgPath string
	var id string
	cmd := &cobra.Command{
		Use:   "check-image REPOSITORY[:TAG]",
		Short: "Check whether a validated image reference can be built",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			cp, closeRuntime, err := selectControlPlane(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closeRuntime() }()

			repository, tag := splitRepoTag(args[0])
			ok, err := sandbox.ImageAvailable(ctx, cp, repository, id, tag)
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintln(cmd.OutOrStdout(), "available")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "not available")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&id, "id", "", "expected image content id")
	return cmd
}

// splitRepoTag splits repository[:tag], leaving registry ports alone.
func splitRepoTag(ref string) (string, string) {
	lastSlash := strings.LastIndex(ref, "/")
	lastColon := strings.LastIndex(ref, ":")
	if lastColon > lastSlash {
		return ref[:lastColon], ref[lastColon+1:]
	}
	return ref, ""
}
