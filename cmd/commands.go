package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"raffle-system/internal/services"
)

// newRaffleCommand returns the "raffle" console command used by operators
// to manage raffles without going through the HTTP API.
func newRaffleCommand(raffles *services.RaffleService, draws *services.DrawService) *cobra.Command {
	root := &cobra.Command{
		Use:   "raffle",
		Short: "Manage raffles",
	}

	var in services.RaffleInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an active raffle",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			raffle, err := raffles.CreateRaffle(commandContext(c), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "Created raffle %s (%s)\n", raffle.ID, raffle.Title)
			return nil
		},
	}
	create.Flags().StringVar(&in.Title, "title", "", "raffle title")
	create.Flags().StringVar(&in.Description, "description", "", "raffle description")
	create.Flags().StringVar(&in.Prize, "prize", "", "prize description")
	_ = create.MarkFlagRequired("title")

	list := &cobra.Command{
		Use:   "list",
		Short: "List raffles, newest first",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			items, err := raffles.ListRaffles(commandContext(c))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tSOLD")
			for _, r := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\n", r.ID, r.Title, r.Status, r.TicketsSold, r.TotalTickets)
			}
			return w.Flush()
		},
	}

	draw := &cobra.Command{
		Use:   "draw <raffle-id>",
		Short: "Draw the winner of an active raffle",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			raffle, err := draws.DrawWinner(commandContext(c), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "Winner of %s: %s, ticket %s\n",
				raffle.Title, raffle.Winner.Name, services.FormatTicketNumber(raffle.Winner.TicketNumber))
			return nil
		},
	}

	cancel := &cobra.Command{
		Use:   "cancel <raffle-id>",
		Short: "Cancel an active raffle",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			raffle, err := raffles.CancelRaffle(commandContext(c), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "Cancelled raffle %s\n", raffle.ID)
			return nil
		},
	}

	root.AddCommand(create, list, draw, cancel)
	return root
}

func commandContext(c *cobra.Command) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
