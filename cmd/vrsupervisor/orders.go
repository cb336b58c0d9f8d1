package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/exolab/vrsupervisor"
	redisAdapter "github.com/exolab/vrsupervisor/internal/adapters/redis"
	"github.com/exolab/vrsupervisor/internal/config"
	"github.com/exolab/vrsupervisor/internal/logging"
	"github.com/exolab/vrsupervisor/pkg/ports"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Manage the balanced order set",
}

var ordersGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the full balanced order set from the configured value sets",
	Long: `Derives every balanced order from the configured condition and object
types and replaces the stored set. Usage history of the previous set is
discarded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, err := ordersSupervisor(cmd)
		if err != nil {
			return err
		}

		res, err := sup.GenerateOrders(context.Background())
		if err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("%s", res.Message)
		}
		fmt.Println(res.Message)
		return nil
	},
}

var ordersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored orders with their usage counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, err := ordersSupervisor(cmd)
		if err != nil {
			return err
		}

		all, err := sup.Orders(context.Background())
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Println("No orders stored. Run 'vrsupervisor orders generate' first.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSES\tLAST USED\tSEQUENCE")
		for _, o := range all {
			lastUsed := "-"
			if o.LastUsed != nil {
				lastUsed = o.LastUsed.Format("2006-01-02 15:04")
			}
			seq := ""
			for i, slot := range o.Sequence {
				if i > 0 {
					seq += ", "
				}
				seq += fmt.Sprintf("%s/%s", slot.ConditionType, slot.ObjectType)
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", o.ID, o.UsageCount, lastUsed, seq)
		}
		return w.Flush()
	},
}

var ordersResetUsageCmd = &cobra.Command{
	Use:   "reset-usage",
	Short: "Zero every order's usage counter",
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, err := ordersSupervisor(cmd)
		if err != nil {
			return err
		}

		res, err := sup.ResetOrderUsage(context.Background())
		if err != nil {
			return err
		}
		fmt.Println(res.Message)
		return nil
	},
}

func ordersSupervisor(cmd *cobra.Command) (*vrsupervisor.Supervisor, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	redisAddr, _ := cmd.Flags().GetString("redis")

	cfgManager, err := config.NewManager(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var store ports.OrderStore
	if redisAddr != "" {
		store = redisAdapter.New(redisAddr, "", 0)
	}

	conditions, objects := cfgManager.ValueSets()
	return vrsupervisor.New(
		vrsupervisor.WithLogger(logging.New(logLevel(cmd))),
		vrsupervisor.WithOrderStore(store),
		vrsupervisor.WithValueSets(conditions, objects),
	), nil
}

func init() {
	rootCmd.AddCommand(ordersCmd)
	ordersCmd.AddCommand(ordersGenerateCmd)
	ordersCmd.AddCommand(ordersListCmd)
	ordersCmd.AddCommand(ordersResetUsageCmd)
}
