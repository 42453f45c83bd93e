package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/interviewer/internal/interview"
	"github.com/spigell/interviewer/internal/store"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard [candidate-id]",
	Short: "List candidates by score or show one candidate in detail",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runDashboard(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)

	dashboardCmd.Flags().StringP("query", "q", "", "filter candidates by name or email")
}

func runDashboard(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	config, logger := bootstrap()

	st, err := newStore(ctx, config.Store, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer st.Close()

	if len(args) == 1 {
		c, err := st.Get(ctx, args[0])
		if err != nil {
			logger.Fatal("getting the candidate", zap.Error(err))
		}
		renderCandidate(cmd.OutOrStdout(), c)
		return
	}

	all, err := st.List(ctx)
	if err != nil {
		logger.Fatal("listing candidates", zap.Error(err))
	}

	query, _ := cmd.Flags().GetString("query")
	candidates := store.Search(all, query)
	if len(candidates) == 0 {
		logger.Info("no candidates found", zap.String("query", query))
		return
	}

	renderTable(cmd.OutOrStdout(), candidates)
}

func renderTable(out io.Writer, candidates []interview.Candidate) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "Name", "Email", "Phone", "Status", "Question", "Score", "Updated"})
	table.SetAutoWrapText(false)

	for _, c := range candidates {
		table.Append([]string{
			c.ID,
			orDash(c.Name),
			orDash(c.Email),
			orDash(c.Phone),
			string(c.Status),
			fmt.Sprintf("%d/%d", c.CurrentQuestion, c.TotalQuestions),
			strconv.Itoa(c.Score),
			c.UpdatedAt.Local().Format(time.DateTime),
		})
	}

	table.Render()
}

func renderCandidate(out io.Writer, c interview.Candidate) {
	table := tablewriter.NewWriter(out)
	table.SetAutoWrapText(false)
	table.AppendBulk([][]string{
		{"Name", orDash(c.Name)},
		{"Email", orDash(c.Email)},
		{"Phone", orDash(c.Phone)},
		{"Status", string(c.Status)},
		{"Score", fmt.Sprintf("%d/100", c.Score)},
		{"Progress", fmt.Sprintf("%d/%d", c.CurrentQuestion, c.TotalQuestions)},
		{"Created", c.CreatedAt.Local().Format(time.DateTime)},
	})
	if c.CompletedAt != nil {
		table.Append([]string{"Completed", c.CompletedAt.Local().Format(time.DateTime)})
	}
	table.Render()

	if c.AISummary != "" {
		fmt.Fprintf(out, "\nSummary:\n%s\n", c.AISummary)
	}

	fmt.Fprintln(out, "\nChat history:")
	for _, msg := range c.ChatHistory {
		fmt.Fprintf(out, "[%s] %s: %s\n", msg.Timestamp.Local().Format(time.TimeOnly), msg.Role, msg.Content)
	}
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
