package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/interviewer/internal/interview"
	"github.com/spigell/interviewer/internal/logger"
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Extract name, email and phone from a PDF resume",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runParse(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().Bool("text", false, "print the extracted resume text")
}

func runParse(cmd *cobra.Command, path string) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	text, err := decodeFile(path)
	if err != nil {
		logger.Fatal("decoding the document", zap.String("path", path), zap.Error(err))
	}

	extraction := interview.PatternExtractor{}.ExtractDocument(text)

	logger.Info("document parsed",
		zap.String("name", extraction.Name),
		zap.String("email", extraction.Email),
		zap.String("phone", extraction.Phone),
		zap.Strings("missing", extraction.Missing()),
		zap.Int("text_length", len([]rune(extraction.ResumeText))),
	)

	if printText, _ := cmd.Flags().GetBool("text"); printText {
		fmt.Fprintln(cmd.OutOrStdout(), extraction.ResumeText)
	}
}
