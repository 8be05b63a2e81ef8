package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/model"
	"github.com/ogulcanaydogan/AWS-Budget-Guardian/pkg/monitor"
	"github.com/spf13/cobra"
)

var thresholdsCmd = &cobra.Command{
	Use:   "thresholds",
	Short: "Show the alert tiers for the configured budget",
	Long: `Print the absolute cutoff of every alert tier. With --spend the given
amount is classified and the report it would produce is printed. No AWS call
is made.`,
	RunE: runThresholds,
}

func init() {
	rootCmd.AddCommand(thresholdsCmd)

	thresholdsCmd.Flags().Float64("budget", 0, "monthly budget (overrides budget.amount)")
	thresholdsCmd.Flags().Float64("spend", 0, "classify this month-to-date spend")
}

func runThresholds(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	pct := cfg.Percentages()
	ts := monitor.CalculateThresholds(cfg.Budget.Amount, pct)
	currency := cfg.Budget.Currency

	printf(cmd, "Monthly budget: %s %.2f\n\n", currency, cfg.Budget.Amount)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "LEVEL\tPERCENT\tAMOUNT\tACTIONS\n")
	for _, th := range []model.Threshold{ts.Warning, ts.Critical, ts.Emergency} {
		acts := "-"
		if th.Level.AtLeast(model.LevelCritical) {
			acts = "remediation (when enabled)"
		}
		fmt.Fprintf(w, "%s\t%.0f%%\t%s %.2f\t%s\n", strings.ToUpper(th.Level.String()), th.Percentage, currency, th.Amount, acts)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !pct.Ordered() {
		printf(cmd, "\nWarning: thresholds are not ascending (warning %.0f%%, critical %.0f%%, emergency %.0f%%).\n",
			pct.Warning, pct.Critical, pct.Emergency)
		printf(cmd, "Tiers are checked from emergency down, so some may never fire.\n")
	}

	if !cmd.Flags().Changed("spend") {
		return nil
	}

	spendAmount, _ := cmd.Flags().GetFloat64("spend")
	level := monitor.Classify(spendAmount, ts)
	printf(cmd, "\nLevel: %s\n\n", level)
	printf(cmd, "%s\n", monitor.FormatReport(monitor.ReportInput{
		Level:      level,
		Spend:      spendAmount,
		Budget:     cfg.Budget.Amount,
		Currency:   currency,
		Thresholds: ts,
		AccountID:  cfg.AWS.AccountID,
		AsOf:       time.Now(),
	}))
	return nil
}
