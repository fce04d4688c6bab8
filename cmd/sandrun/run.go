package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/sandrun/internal/appconfig"
	"pkt.systems/sandrun/sandbox"
	"pkt.systems/sandrun/schema"
)

func newRunCmd() *cobra.Command {
	var cfgPath string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "run MANIFEST",
		Short: "Run one sandboxed job described by a YAML manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			manifest, err := schema.LoadManifest(args[0])
			if err != nil {
				return err
			}
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			cp, closeRuntime, err := selectControlPlane(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = closeRuntime() }()

			image, err := sandbox.NewImageRef(ctx, cp, manifest.Image.Repository, manifest.Image.ID, manifest.Image.Tag)
			if err != nil {
				return err
			}
			job, err := sandbox.NewJob(cp, sandbox.JobSpec{
				Image:       image,
				Script:      manifest.Script,
				Params:      manifest.Params,
				WorkDir:     manifest.WorkDir,
				ResourceDir: manifest.ResourceDir,
				OutputDir:   manifest.OutputDir,
			})
			if err != nil {
				return err
			}

			exitCode := sandbox.NoExitCode
			err = job.Run(ctx, func(ctx context.Context, job *sandbox.Job) error {
				if _, started, err := job.Start(ctx); err != nil {
					return err
				} else if !started {
					return errors.New("container was not in created state")
				}
				code, err := job.Wait(ctx, timeout)
				if err != nil {
					return err
				}
				logs, err := job.Logs(ctx)
				if err != nil {
					return err
				}
				if logs != "" {
					fmt.Fprint(cmd.OutOrStdout(), logs)
				}
				exitCode = code
				return nil
			})
			if err != nil {
				return err
			}
			if exitCode == sandbox.NoExitCode {
				return errors.New("job did not finish before the timeout")
			}
			if exitCode != 0 {
				return fmt.Errorf("job exited with code %d", exitCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "max time to wait for the job; 0 waits forever")
	return cmd
}
