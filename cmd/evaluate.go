package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pubclass/pipeline"
	"pubclass/service"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Train every model once and score it on the held-out split",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		if n, _ := cmd.Flags().GetInt("sample-size"); n > 0 {
			a.cfg.Dataset.SampleSize = n
		}
		a.cfg.Training.Evaluate = true
		asJSON, _ := cmd.Flags().GetBool("json")

		catalog, err := pipeline.NewCatalog(a.cfg.Categories)
		if err != nil {
			return err
		}
		encoder := newEncoder(a.cfg, a.log)
		if encoder != nil {
			defer encoder.Close()
		}
		svc := service.New(serviceConfig(a.cfg), catalog, newSource(a.cfg, a.log), encoder, a.log.Named("service"))
		if err := svc.Initialize(cmd.Context()); err != nil {
			return err
		}
		report, err := svc.Evaluation()
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		printReport(report)
		return nil
	},
}

func init() {
	evaluateCmd.Flags().Int("sample-size", 0, "Override dataset.sample_size")
	evaluateCmd.Flags().Bool("json", false, "Print the report as JSON")
}

func printReport(report service.Report) {
	fmt.Printf("Run %s: %d samples (%d train / %d test) in %s\n\n",
		report.RunID, report.Samples, report.TrainSize, report.TestSize, report.Duration.Round(time.Millisecond))

	keys := make([]string, 0, len(report.Models))
	for k := range report.Models {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tACCURACY\tPRECISION\tRECALL\tTRAIN\tERROR")
	for _, k := range keys {
		m := report.Models[k]
		if m.Scores == nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t%s\t%s\n", k, m.Duration.Round(time.Microsecond), m.Error)
			continue
		}
		fmt.Fprintf(w, "%s\t%.3f\t%.3f\t%.3f\t%s\t%s\n",
			k, m.Scores.Accuracy, m.Scores.Precision, m.Scores.Recall, m.Duration.Round(time.Microsecond), m.Error)
	}
	_ = w.Flush()
}
