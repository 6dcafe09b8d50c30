package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lsp-toolkit/socialrecovery"
	"github.com/spf13/cobra"
)

func addressCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Prints address of the recovery contract of the profile",
		Args:  cobra.NoArgs,
		RunE: a.run(false, func(cmd *cobra.Command, c *socialrecovery.Client, _ []string) error {
			addr, err := c.Address(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), addr.Hex())

			return nil
		}),
	}
}

func guardiansCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "guardians",
		Short: "Lists guardians of the recovery contract",
		Args:  cobra.NoArgs,
		RunE: a.run(false, func(cmd *cobra.Command, c *socialrecovery.Client, _ []string) error {
			gs, err := c.GetGuardians(cmd.Context())
			if err != nil {
				return err
			}

			for _, g := range gs {
				fmt.Fprintln(cmd.OutOrStdout(), g.Hex())
			}

			return nil
		}),
	}
}

func thresholdCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "threshold",
		Short: "Prints number of guardian votes required for recovery",
		Args:  cobra.NoArgs,
		RunE: a.run(false, func(cmd *cobra.Command, c *socialrecovery.Client, _ []string) error {
			n, err := c.GetGuardiansThreshold(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), n)

			return nil
		}),
	}
}

func voteOfCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "vote-of PROCESS_ID GUARDIAN",
		Short: "Prints nominee the guardian voted for in the recovery process",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(false, func(cmd *cobra.Command, c *socialrecovery.Client, args []string) error {
			id, err := parseProcessID(args[0])
			if err != nil {
				return err
			}

			g, err := parseAddress(args[1])
			if err != nil {
				return err
			}

			nominee, err := c.GetGuardianVote(cmd.Context(), id, g)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), nominee.Hex())

			return nil
		}),
	}
}

func processesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "processes",
		Short: "Lists IDs of the recovery processes",
		Args:  cobra.NoArgs,
		RunE: a.run(false, func(cmd *cobra.Command, c *socialrecovery.Client, _ []string) error {
			ids, err := c.GetRecoverProcessesIds(cmd.Context())
			if err != nil {
				return err
			}

			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), common.Hash(id).Hex())
			}

			return nil
		}),
	}
}

func stateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Prints recovery configuration and processes of the profile",
		Args:  cobra.NoArgs,
		RunE: a.run(false, func(cmd *cobra.Command, c *socialrecovery.Client, _ []string) error {
			st, err := c.State(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()

			fmt.Fprintf(w, "phase: %s\n", st.Phase)
			if st.Phase == socialrecovery.PhaseNotDeployed {
				return nil
			}

			fmt.Fprintf(w, "address: %s\n", st.Address.Hex())
			fmt.Fprintf(w, "threshold: %s\n", st.Threshold)
			fmt.Fprintln(w, "guardians:")
			for _, g := range st.Guardians {
				fmt.Fprintf(w, "  %s\n", g.Hex())
			}

			if len(st.Processes) == 0 {
				return nil
			}

			fmt.Fprintln(w, "processes:")
			for _, p := range st.Processes {
				fmt.Fprintf(w, "  %s\n", common.Hash(p.ID).Hex())

				tally := p.Tally()
				for _, nominee := range slices.SortedFunc(maps.Keys(tally), func(x, y common.Address) int { return x.Cmp(y) }) {
					fmt.Fprintf(w, "    %s: %d\n", nominee.Hex(), tally[nominee])
				}
			}

			return nil
		}),
	}
}

func permissionsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "permissions ADDRESS",
		Short: "Prints permissions of the address on the profile",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(false, func(cmd *cobra.Command, c *socialrecovery.Client, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}

			p, err := c.Permissions(cmd.Context(), addr)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), p)

			return nil
		}),
	}
}

func networksCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "Lists networks from the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := a.cfg.Registry()

			for _, id := range reg.ChainIDs() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", id, reg[id].Name, reg[id].RPCURL)
			}

			return nil
		},
	}
}
