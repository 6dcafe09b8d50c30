package main

import (
	"fmt"

	"github.com/lsp-toolkit/socialrecovery"
	"github.com/spf13/cobra"
)

const (
	secretFlag    = "secret"
	guardianFlag  = "guardian"
	thresholdFlag = "threshold"
)

func deployCommand(a *app) *cobra.Command {
	var (
		secret    string
		guardians []string
		threshold string
	)

	c := &cobra.Command{
		Use:   "deploy",
		Short: "Deploys and configures the recovery contract of the profile",
		Long: `Deploys the recovery contract, grants it permissions to add and change
controllers of the profile and applies the initial configuration. Each step is
a separate transaction. If a step fails, completed steps remain applied and the
rest can be done with the corresponding commands.`,
		Args: cobra.NoArgs,
		RunE: a.run(true, func(cmd *cobra.Command, c *socialrecovery.Client, _ []string) error {
			var opts socialrecovery.DeployOptions

			if secret != "" {
				h := socialrecovery.SecretHash(secret)
				opts.SecretHash = &h
			}

			var err error

			if opts.Guardians, err = parseAddresses(guardians); err != nil {
				return err
			}

			if threshold != "" {
				if opts.Threshold, err = parseThreshold(threshold); err != nil {
					return err
				}
			}

			addr, err := c.Deploy(cmd.Context(), opts, func(step string, err error) {
				if err == nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "==> %s\n", step)
				}
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), addr.Hex())

			return nil
		}),
	}

	flags := c.Flags()
	flags.StringVar(&secret, secretFlag, "", "Plain recovery secret, its hash is stored in the contract")
	flags.StringSliceVar(&guardians, guardianFlag, nil, "Guardian address, may be repeated")
	flags.StringVar(&threshold, thresholdFlag, "", "Number of guardian votes required for recovery")

	return c
}

func addGuardianCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add-guardian ADDRESS",
		Short: "Adds guardian to the recovery contract",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(true, func(cmd *cobra.Command, c *socialrecovery.Client, args []string) error {
			g, err := parseAddress(args[0])
			if err != nil {
				return err
			}

			r, err := c.AddGuardian(cmd.Context(), g)
			if err != nil {
				return err
			}

			printReceipt(cmd, r)

			return nil
		}),
	}
}

func removeGuardianCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-guardian ADDRESS",
		Short: "Removes guardian from the recovery contract",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(true, func(cmd *cobra.Command, c *socialrecovery.Client, args []string) error {
			g, err := parseAddress(args[0])
			if err != nil {
				return err
			}

			r, err := c.RemoveGuardian(cmd.Context(), g)
			if err != nil {
				return err
			}

			printReceipt(cmd, r)

			return nil
		}),
	}
}

func setThresholdCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-threshold N",
		Short: "Sets number of guardian votes required for recovery",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(true, func(cmd *cobra.Command, c *socialrecovery.Client, args []string) error {
			n, err := parseThreshold(args[0])
			if err != nil {
				return err
			}

			r, err := c.SetThreshold(cmd.Context(), n)
			if err != nil {
				return err
			}

			printReceipt(cmd, r)

			return nil
		}),
	}
}

func setSecretCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-secret SECRET",
		Short: "Replaces the recovery secret",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(true, func(cmd *cobra.Command, c *socialrecovery.Client, args []string) error {
			r, err := c.SetSecret(cmd.Context(), socialrecovery.SecretHash(args[0]))
			if err != nil {
				return err
			}

			printReceipt(cmd, r)

			return nil
		}),
	}
}

func voteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "vote PROCESS_ID NOMINEE",
		Short: "Votes as a guardian for the new controller of the profile",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(true, func(cmd *cobra.Command, c *socialrecovery.Client, args []string) error {
			id, err := parseProcessID(args[0])
			if err != nil {
				return err
			}

			nominee, err := parseAddress(args[1])
			if err != nil {
				return err
			}

			r, err := c.VoteToRecover(cmd.Context(), id, nominee)
			if err != nil {
				return err
			}

			printReceipt(cmd, r)

			return nil
		}),
	}
}

func recoverCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recover PROCESS_ID SECRET NEW_SECRET",
		Short: "Recovers control over the profile as the voted nominee",
		Args:  cobra.ExactArgs(3),
		RunE: a.run(true, func(cmd *cobra.Command, c *socialrecovery.Client, args []string) error {
			id, err := parseProcessID(args[0])
			if err != nil {
				return err
			}

			r, err := c.RecoverOwnership(cmd.Context(), id, args[1], socialrecovery.SecretHash(args[2]))
			if err != nil {
				return err
			}

			printReceipt(cmd, r)

			return nil
		}),
	}
}
