package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sentiment-price-tracker",
	Short: "A CLI for managing the sentiment-price tracker services",
	Long:  `Sentiment-price tracker ingests financial news and stock prices, scores headline sentiment, and persists both series for dual-axis visualization.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI '%s'", err)
		os.Exit(1)
	}
}
