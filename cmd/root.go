// Package cmd holds the pubclass command line.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pubclass",
	Short: "Publication abstract classification service",
	Long: "pubclass trains bag-of-words, tf-idf and embedding representations against " +
		"k-means, k-NN, decision tree and naive Bayes classifiers, and serves " +
		"classifications of arXiv abstracts over HTTP.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "config.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to a .env file loaded before environment overrides")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(evaluateCmd)
}
