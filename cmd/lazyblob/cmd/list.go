package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/aweris/lazyblob"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list", "status"},
	Short:   "List tracked files",
	Long:    "Show every tracked file with its latest hash, state, version count and users.",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)

	stateColors = map[lazyblob.State]lipgloss.Color{
		lazyblob.StateCurrent:  lipgloss.Color("2"),
		lazyblob.StateModified: lipgloss.Color("3"),
		lazyblob.StateStale:    lipgloss.Color("3"),
		lazyblob.StateMissing:  lipgloss.Color("1"),
		lazyblob.StateUnknown:  lipgloss.Color("1"),
	}
)

func init() {
	rootCmd.AddCommand(listCmd)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func runList(cmd *cobra.Command, args []string) (err error) {
	p, err := openProject()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	statuses, err := p.Status(context.Background())
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		fmt.Println("(no tracked files)")
		return nil
	}

	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, []string{
			s.Path,
			shortHash(s.Hash),
			string(s.State),
			fmt.Sprint(s.Versions),
			strings.Join(s.Usage, ", "),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PATH", "HASH", "STATE", "VERSIONS", "USAGE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 {
				return cellStyle.Foreground(stateColors[statuses[row].State])
			}
			return cellStyle
		})

	fmt.Println(t)
	return nil
}
