package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/awaistahir/loadplan/internal/config"
	"github.com/awaistahir/loadplan/internal/engine"
	"github.com/awaistahir/loadplan/internal/mqtt"
	"github.com/awaistahir/loadplan/internal/planner"
	"github.com/awaistahir/loadplan/internal/store"
	"github.com/awaistahir/loadplan/internal/tariff"
)

var (
	cfgFile string
	dbPath  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "loadplan",
		Short: "LoadPlan - Schedule appliances into the cheapest hours",
		Long: `LoadPlan finds the cheapest hours to run your household appliances
under an hourly tariff, without ever exceeding the house's load limit.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.loadplan/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default is $HOME/.loadplan/loadplan.db)")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(applianceCmd())
	rootCmd.AddCommand(tariffCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(publishCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

func openStore() (config.Config, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.Config{}, nil, err
	}
	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("opening database: %w", err)
	}
	return cfg, st, nil
}

func initCmd() *cobra.Command {
	var examples bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize LoadPlan with the default tariff",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.SaveTariff(tariff.Default(), true); err != nil {
				return err
			}
			fmt.Println("✓ Initialized default tariff")

			if examples {
				for _, a := range exampleAppliances() {
					if _, err := st.AddAppliance(a); err != nil {
						if errors.Is(err, store.ErrExists) {
							continue
						}
						return err
					}
					fmt.Printf("✓ Added appliance: %s\n", a.Name)
				}
			}

			fmt.Printf("Database: %s\n", cfg.DBPath)
			fmt.Println("\nNext steps:")
			fmt.Println("  1. Add appliances: loadplan appliance add")
			fmt.Println("  2. Generate plan: loadplan plan")

			return nil
		},
	}

	cmd.Flags().BoolVar(&examples, "examples", false, "Also add a set of example appliances")

	return cmd
}

// exampleAppliances returns a ready-made household for trying things out.
func exampleAppliances() []engine.Appliance {
	return []engine.Appliance{
		{Name: "Washing Machine", PowerKW: 1.5, DurationHours: 2, WindowStart: 8, WindowEnd: 20},
		{Name: "TV", PowerKW: 0.1, DurationHours: 5, WindowStart: 18, WindowEnd: 23},
		{Name: "Air Conditioner", PowerKW: 2.0, DurationHours: 4, WindowStart: 12, WindowEnd: 22},
		{Name: "Electric Fan", PowerKW: 0.05, DurationHours: 6, WindowStart: 8, WindowEnd: 22},
		{Name: "Phone Charger", PowerKW: 0.01, DurationHours: 3, WindowStart: 0, WindowEnd: 23},
	}
}

func applianceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appliance",
		Short: "Manage appliances",
	}

	cmd.AddCommand(applianceAddCmd())
	cmd.AddCommand(applianceListCmd())
	cmd.AddCommand(applianceRemoveCmd())
	cmd.AddCommand(applianceSetEnabledCmd("enable", true))
	cmd.AddCommand(applianceSetEnabledCmd("disable", false))

	return cmd
}

func applianceAddCmd() *cobra.Command {
	var name string
	var powerKW float64
	var duration int
	var from, to int

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new appliance",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			rec, err := st.AddAppliance(engine.Appliance{
				Name:          name,
				PowerKW:       powerKW,
				DurationHours: duration,
				WindowStart:   from,
				WindowEnd:     to,
			})
			if err != nil {
				return err
			}

			fmt.Printf("✓ Added appliance: %s\n", name)
			fmt.Printf("  ID: %s\n", rec.ID)
			fmt.Printf("  Power: %.2f kW\n", powerKW)
			fmt.Printf("  Runs: %dh within hours %d-%d\n", duration, from, to)

			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Appliance name (required)")
	cmd.Flags().Float64VarP(&powerKW, "power", "p", 1.0, "Power draw in kW")
	cmd.Flags().IntVarP(&duration, "duration", "d", 1, "Hours it must run")
	cmd.Flags().IntVar(&from, "from", 0, "Earliest hour of the allowed window (0-23)")
	cmd.Flags().IntVar(&to, "to", 23, "Latest hour of the allowed window (0-23)")

	cmd.MarkFlagRequired("name")

	return cmd
}

func applianceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all appliances",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			appliances, err := st.Appliances(false)
			if err != nil {
				return err
			}

			if len(appliances) == 0 {
				fmt.Println("No appliances configured")
				return nil
			}

			fmt.Printf("%-20s %-10s %8s %6s %8s %8s\n", "NAME", "ID", "POWER", "HOURS", "WINDOW", "ENABLED")
			fmt.Println("-----------------------------------------------------------------")

			for _, a := range appliances {
				enabled := "Yes"
				if !a.Enabled {
					enabled = "No"
				}
				window := fmt.Sprintf("%d-%d", a.WindowStart, a.WindowEnd)
				fmt.Printf("%-20s %-10s %6.2fkW %5dh %8s %8s\n",
					a.Name, shortID(a.ID), a.PowerKW, a.DurationHours, window, enabled)
			}

			return nil
		},
	}
}

func applianceRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id-or-name>",
		Short: "Remove an appliance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.RemoveAppliance(args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ Removed appliance: %s\n", args[0])
			return nil
		},
	}
}

func applianceSetEnabledCmd(use string, enabled bool) *cobra.Command {
	verb, short := "Enabled", "Enable an appliance for planning"
	if !enabled {
		verb, short = "Disabled", "Exclude an appliance from planning"
	}
	return &cobra.Command{
		Use:   use + " <id-or-name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.SetApplianceEnabled(args[0], enabled); err != nil {
				return err
			}
			fmt.Printf("✓ %s appliance: %s\n", verb, args[0])
			return nil
		},
	}
}

func tariffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tariff",
		Short: "Manage the hourly tariff",
	}

	cmd.AddCommand(tariffShowCmd())
	cmd.AddCommand(tariffSetCmd())
	cmd.AddCommand(tariffFetchCmd())

	return cmd
}

func tariffShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the tariff the next plan will use",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			t, err := st.ActiveTariff()
			if errors.Is(err, store.ErrNotFound) {
				t = tariff.Default()
			} else if err != nil {
				return err
			}

			fmt.Printf("Tariff: %s (%s)\n\n", t.Name, t.Unit)
			for hour, price := range t.Hourly {
				fmt.Printf("%-6s %7.2f\n", planner.ClockLabel(hour), price)
			}

			sum := t.Summarize()
			fmt.Printf("\nMean %.2f  Median %.2f  StdDev %.2f  Min %.2f (%s)  Max %.2f (%s)\n",
				sum.Mean, sum.Median, sum.StdDev,
				sum.Min, planner.ClockLabel(sum.CheapestHour),
				sum.Max, planner.ClockLabel(sum.PriciestHour))

			return nil
		},
	}
}

func tariffSetCmd() *cobra.Command {
	var name string
	var unit string
	var pricesCSV string
	var activate bool

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store an hourly tariff",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			t, err := tariff.Parse(name, unit, pricesCSV)
			if err != nil {
				return err
			}
			if err := t.Validate(cfg.Horizon); err != nil {
				return err
			}

			if err := st.SaveTariff(t, activate); err != nil {
				return err
			}

			fmt.Printf("✓ Saved tariff: %s\n", name)
			if activate {
				fmt.Println("  Activated for planning")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Tariff name (required)")
	cmd.Flags().StringVarP(&unit, "unit", "u", "PHP/kWh", "Price unit")
	cmd.Flags().StringVarP(&pricesCSV, "prices", "p", "", "Comma-separated hourly prices (required)")
	cmd.Flags().BoolVar(&activate, "activate", true, "Use this tariff for planning")

	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("prices")

	return cmd
}

func tariffFetchCmd() *cobra.Command {
	var region string
	var date string
	var save bool
	var activate bool

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch an hourly tariff from Octopus Agile",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			day := time.Now()
			if date != "today" {
				var parseErr error
				day, parseErr = time.Parse("2006-01-02", date)
				if parseErr != nil {
					return fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", parseErr)
				}
			}

			client := tariff.NewOctopusClient(region)
			t, err := client.FetchDay(ctx, day)
			if err != nil {
				return err
			}

			if save || activate {
				cfg, st, err := openStore()
				if err != nil {
					return err
				}
				defer st.Close()

				if err := t.Validate(cfg.Horizon); err != nil {
					return err
				}
				if err := st.SaveTariff(t, activate); err != nil {
					return err
				}
				fmt.Printf("✓ Saved tariff: %s\n", t.Name)
				if activate {
					fmt.Println("  Activated for planning")
				}
				return nil
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(t)
		},
	}

	cmd.Flags().StringVarP(&region, "region", "r", "C", "Octopus region (A-P)")
	cmd.Flags().StringVarP(&date, "date", "d", "today", "Date to fetch (YYYY-MM-DD or 'today')")
	cmd.Flags().BoolVar(&save, "save", false, "Store the fetched tariff")
	cmd.Flags().BoolVar(&activate, "activate", false, "Store and use it for planning")

	return cmd
}

func planCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute the cheapest schedule for the enabled appliances",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			pl := planner.New(st, planner.Options{
				Horizon:   cfg.Horizon,
				MaxLoadKW: cfg.MaxLoadKW,
			})

			plan, err := pl.BuildPlan(ctx)
			switch {
			case errors.Is(err, planner.ErrNoAppliances):
				return fmt.Errorf("%w (use 'loadplan appliance add')", err)
			case errors.Is(err, engine.ErrInfeasible):
				return fmt.Errorf("%w (raise max_load_kw or widen appliance windows)", err)
			case err != nil:
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}

			printPlan(plan)
			fmt.Fprintf(os.Stderr, "Solved in %d states\n", plan.States)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the plan as JSON")

	return cmd
}

func printPlan(plan planner.Plan) {
	fmt.Printf("Optimal schedule (tariff: %s, max load: %.1f kW)\n\n", plan.TariffName, plan.MaxLoadKW)

	for _, h := range plan.Hours {
		if len(h.Appliances) == 0 {
			continue
		}
		fmt.Printf("%-6s %-45s %6.2f kW %9.2f\n",
			h.Label, strings.Join(h.Appliances, ", "), h.LoadKW, h.Cost)
	}

	currency := strings.TrimSuffix(plan.Unit, "/kWh")
	fmt.Printf("\nTotal Energy Cost: %s %.2f\n", currency, plan.TotalCost)
}

func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Re-send the most recent plan over MQTT",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if !cfg.MQTT.Enabled {
				return errors.New("mqtt is not enabled (set mqtt.enabled in the config)")
			}

			pub, err := mqtt.NewPublisher(mqtt.Config{
				Broker:      cfg.MQTT.Broker,
				ClientID:    cfg.MQTT.ClientID,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				QoS:         byte(cfg.MQTT.QoS),
			}, zerolog.Nop())
			if err != nil {
				return err
			}
			defer pub.Disconnect()

			pl := planner.New(st, planner.Options{
				Horizon:   cfg.Horizon,
				MaxLoadKW: cfg.MaxLoadKW,
				Publisher: pub,
			})

			plan, err := pl.PublishLast(ctx)
			if errors.Is(err, planner.ErrNoPlans) {
				return fmt.Errorf("%w (run 'loadplan plan' first)", err)
			}
			if err != nil {
				return err
			}

			fmt.Printf("✓ Published plan %s (total cost %.2f)\n", shortID(plan.ID), plan.TotalCost)
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently computed plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			plans, err := st.RecentPlans(limit)
			if err != nil {
				return err
			}

			if len(plans) == 0 {
				fmt.Println("No plans yet (run 'loadplan plan' first)")
				return nil
			}

			fmt.Printf("%-10s %-17s %-12s %12s %8s\n", "ID", "CREATED", "TARIFF", "TOTAL COST", "STATES")
			fmt.Println("----------------------------------------------------------------")

			for _, p := range plans {
				fmt.Printf("%-10s %-17s %-12s %12.2f %8d\n",
					shortID(p.ID),
					p.CreatedAt.Local().Format("2006-01-02 15:04"),
					p.TariffName, p.TotalCost, p.States)
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of plans to show")

	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
