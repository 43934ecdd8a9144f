package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/the-hours-must-flow/internal/cli"
	"github.com/spf13/cobra"
)

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the task catalog from the time tracker",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			filter, _ := cmd.Flags().GetString("filter")

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			tracker, err := a.timeTracker()
			if err != nil {
				return err
			}
			tasks, err := tracker.FetchTasks(cmd.Context())
			if err != nil {
				return err
			}

			filter = strings.ToLower(filter)
			var rows [][]string
			for _, t := range tasks {
				if !all && !t.IsActive() {
					continue
				}
				if filter != "" && !strings.Contains(strings.ToLower(t.Title+" "+t.Project+" "+t.Module), filter) {
					continue
				}
				rows = append(rows, []string{t.ID, truncate(t.Title, 50), t.Project, t.Module, t.Status})
			}
			sort.SliceStable(rows, func(i, j int) bool {
				if rows[i][2] != rows[j][2] {
					return rows[i][2] < rows[j][2]
				}
				return rows[i][1] < rows[j][1]
			})

			if len(rows) == 0 {
				writeLine(cmd.OutOrStdout(), cli.FormatInfo("No tasks found"))
				return nil
			}
			writeLine(cmd.OutOrStdout(), cli.RenderTable([]string{"ID", "Title", "Project", "Module", "Status"}, rows))
			writeLine(cmd.OutOrStdout(), "\n"+cli.SubtleStyle.Render(fmt.Sprintf("%d of %d tasks", len(rows), len(tasks))))
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "include closed tasks")
	cmd.Flags().String("filter", "", "only tasks whose title, project or module contains this text")
	return cmd
}
