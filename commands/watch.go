package commands

import (
	"encoding/json"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/c360studio/aof/views"
)

const watchRefreshInterval = 2 * time.Second

func newWatchCommand(root *string) *cobra.Command {
	var (
		format string
		agent  string
	)
	cmd := &cobra.Command{
		Use:   "watch <kanban|mailbox> [path]",
		Short: "Live view of the kanban board or an agent's mailbox",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			view := args[0]
			watchRoot := *root
			if len(args) == 2 {
				watchRoot = args[1]
			}

			switch view {
			case "kanban":
				return runWatchKanban(cmd, watchRoot, format)
			case "mailbox":
				return runWatchMailbox(cmd, watchRoot, format, agent)
			default:
				return fmt.Errorf("watch: unknown view %q (want kanban or mailbox)", view)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "cli", "cli|json|jsonl")
	cmd.Flags().StringVar(&agent, "agent", "", "filter mailbox to one agent")
	return cmd
}

func runWatchKanban(cmd *cobra.Command, root, format string) error {
	app, _, err := NewApp(root)
	if err != nil {
		return err
	}

	if format != "cli" {
		return watchLoop(cmd, func() (any, error) { return views.BuildKanban(app.Store) }, format)
	}

	p := tea.NewProgram(newKanbanModel(app))
	_, err = p.Run()
	return err
}

func runWatchMailbox(cmd *cobra.Command, root, format, agent string) error {
	app, _, err := NewApp(root)
	if err != nil {
		return err
	}

	build := func() (any, error) { return views.BuildMailbox(app.Root, agent, 50) }

	if format != "cli" {
		return watchLoop(cmd, build, format)
	}

	ticker := time.NewTicker(watchRefreshInterval)
	defer ticker.Stop()
	for {
		mb, err := views.BuildMailbox(app.Root, agent, 50)
		if err != nil {
			return err
		}
		for _, e := range mb.Events {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-28s actor=%-16s task=%s\n",
				e.Timestamp.Format(time.RFC3339), e.Type, e.Actor, e.TaskID)
		}
		select {
		case <-cmd.Context().Done():
			return nil
		case <-ticker.C:
		}
	}
}

// watchLoop is the shared "json"/"jsonl" rendering path: json prints one
// snapshot and exits, jsonl streams one line per refresh until cancelled.
func watchLoop(cmd *cobra.Command, build func() (any, error), format string) error {
	snapshot, err := build()
	if err != nil {
		return err
	}
	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot)
	}

	ticker := time.NewTicker(watchRefreshInterval)
	defer ticker.Stop()
	enc := json.NewEncoder(cmd.OutOrStdout())
	for {
		if err := enc.Encode(snapshot); err != nil {
			return err
		}
		select {
		case <-cmd.Context().Done():
			return nil
		case <-ticker.C:
		}
		snapshot, err = build()
		if err != nil {
			return err
		}
	}
}

type kanbanTickMsg time.Time

type kanbanModel struct {
	app   *App
	board views.Kanban
	err   error
}

func newKanbanModel(app *App) kanbanModel {
	return kanbanModel{app: app}
}

func (m kanbanModel) Init() tea.Cmd {
	return tea.Batch(m.refresh(), kanbanTick())
}

func kanbanTick() tea.Cmd {
	return tea.Tick(watchRefreshInterval, func(t time.Time) tea.Msg { return kanbanTickMsg(t) })
}

func (m kanbanModel) refresh() tea.Cmd {
	return func() tea.Msg {
		board, err := views.BuildKanban(m.app.Store)
		if err != nil {
			return kanbanErrMsg{err}
		}
		return kanbanBoardMsg{board}
	}
}

type kanbanBoardMsg struct{ board views.Kanban }
type kanbanErrMsg struct{ err error }

func (m kanbanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case kanbanTickMsg:
		return m, tea.Batch(m.refresh(), kanbanTick())
	case kanbanBoardMsg:
		m.board = msg.board
	case kanbanErrMsg:
		m.err = msg.err
	}
	return m, nil
}

var (
	columnHeaderStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	columnStyle       = lipgloss.NewStyle().Padding(0, 2, 0, 0)
	taskStyle         = lipgloss.NewStyle().Faint(false)
)

func (m kanbanModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("error: %v\n", m.err)
	}

	cols := make([]string, 0, len(m.board.Columns))
	for _, c := range m.board.Columns {
		var b []string
		b = append(b, columnHeaderStyle.Render(fmt.Sprintf("%s (%d)", c.Status, len(c.Tasks))))
		for _, t := range c.Tasks {
			b = append(b, taskStyle.Render(fmt.Sprintf("- %s %s", t.ID, t.Title)))
		}
		cols = append(cols, columnStyle.Render(lipgloss.JoinVertical(lipgloss.Left, b...)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...) + "\n\npress q to quit\n"
}
