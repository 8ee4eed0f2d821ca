package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
	"github.com/dd0wney/cluso-kvclient/pkg/config"
	"github.com/dd0wney/cluso-kvclient/pkg/journal"
	"github.com/dd0wney/cluso-kvclient/pkg/kv"
	"github.com/dd0wney/cluso-kvclient/pkg/pool"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			MarginLeft(2).
			MarginTop(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#0087FF")).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666")).
				Padding(0, 2)

	contentStyle = lipgloss.NewStyle().
			MarginLeft(2).
			MarginTop(1)

	statsBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(1, 2).
			MarginRight(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type view int

const (
	dashboardView view = iota
	nodesView
	poolsView
	eventsView
	viewCount
)

type keyMap struct {
	Tab      key.Binding
	ShiftTab key.Binding
	Refresh  key.Binding
	Quit     key.Binding
	Up       key.Binding
	Down     key.Binding
}

var keys = keyMap{
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next view"),
	),
	ShiftTab: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("shift+tab", "prev view"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh now"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Refresh, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.ShiftTab, k.Refresh},
		{k.Up, k.Down},
		{k.Quit},
	}
}

type model struct {
	client      *kv.Client
	jnl         *journal.Journal
	currentView view
	nodeTable   table.Model
	poolTable   table.Model
	eventTable  table.Model
	help        help.Model
	keys        keyMap
	width       int
	height      int
	message     string
	messageErr  bool
	startTime   time.Time
	interval    time.Duration
	refreshing  bool
	snap        *cluster.Snapshot
	stats       []pool.Stats
}

type tickMsg time.Time

// topologyMsg carries one completed refresh back into the update loop
type topologyMsg struct {
	snap  *cluster.Snapshot
	stats []pool.Stats
	err   error
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refreshCmd fetches a fresh topology off the update loop, so a slow
// cluster never freezes the UI
func refreshCmd(client *kv.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		snap, err := client.Provider().Refresh(ctx)
		return topologyMsg{snap: snap, stats: client.PoolStats(), err: err}
	}
}

func newTable(columns []table.Column, height int) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#0087FF")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func initialModel(client *kv.Client, jnl *journal.Journal, interval time.Duration) model {
	nodeTable := newTable([]table.Column{
		{Title: "ID", Width: 24},
		{Title: "Addr", Width: 22},
		{Title: "Role", Width: 8},
		{Title: "Slots", Width: 30},
	}, 10)

	poolTable := newTable([]table.Column{
		{Title: "Addr", Width: 22},
		{Title: "Active", Width: 8},
		{Title: "Idle", Width: 8},
	}, 10)

	eventTable := newTable([]table.Column{
		{Title: "Time", Width: 10},
		{Title: "Type", Width: 18},
		{Title: "Node", Width: 22},
		{Title: "Detail", Width: 36},
	}, 10)

	return model{
		client:     client,
		jnl:        jnl,
		nodeTable:  nodeTable,
		poolTable:  poolTable,
		eventTable: eventTable,
		help:       help.New(),
		keys:       keys,
		startTime:  time.Now(),
		interval:   interval,
		refreshing: true,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		refreshCmd(m.client),
		tickCmd(m.interval),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		if m.refreshing {
			return m, tickCmd(m.interval)
		}
		m.refreshing = true
		return m, tea.Batch(refreshCmd(m.client), tickCmd(m.interval))

	case topologyMsg:
		m.refreshing = false
		m.applyTopology(msg)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Tab):
			m.currentView = (m.currentView + 1) % viewCount

		case key.Matches(msg, m.keys.ShiftTab):
			if m.currentView == 0 {
				m.currentView = viewCount - 1
			} else {
				m.currentView--
			}

		case key.Matches(msg, m.keys.Refresh):
			if !m.refreshing {
				m.refreshing = true
				return m, refreshCmd(m.client)
			}
		}
	}

	// Update focused component
	switch m.currentView {
	case nodesView:
		m.nodeTable, cmd = m.nodeTable.Update(msg)
		cmds = append(cmds, cmd)
	case poolsView:
		m.poolTable, cmd = m.poolTable.Update(msg)
		cmds = append(cmds, cmd)
	case eventsView:
		m.eventTable, cmd = m.eventTable.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) applyTopology(msg topologyMsg) {
	m.stats = msg.stats

	if msg.err != nil {
		// Keep showing the last good snapshot
		m.message = fmt.Sprintf("refresh failed: %v", msg.err)
		m.messageErr = true
	} else {
		m.snap = msg.snap
		m.message = fmt.Sprintf("version %d, %d nodes", msg.snap.Version, msg.snap.Topology.Size())
		m.messageErr = false
	}

	m.rebuildRows()
}

func (m *model) rebuildRows() {
	if m.snap != nil {
		rows := make([]table.Row, 0, m.snap.Topology.Size())
		for _, node := range m.snap.Topology.Nodes() {
			detail := formatSlots(node.Slots)
			if node.IsReplica() {
				detail = "-> " + node.MasterID
			}
			rows = append(rows, table.Row{node.ID, node.Addr.String(), node.Role.String(), detail})
		}
		m.nodeTable.SetRows(rows)
	}

	poolRows := make([]table.Row, 0, len(m.stats))
	for _, s := range m.stats {
		poolRows = append(poolRows, table.Row{s.Addr, fmt.Sprintf("%d", s.Active), fmt.Sprintf("%d", s.Idle)})
	}
	m.poolTable.SetRows(poolRows)

	eventRows := make([]table.Row, 0)
	for _, event := range m.jnl.Recent(50) {
		node := event.Node
		if node == "" {
			node = "-"
		}
		eventRows = append(eventRows, table.Row{
			event.Timestamp.Format("15:04:05"),
			string(event.Type),
			node,
			event.Detail,
		})
	}
	m.eventTable.SetRows(eventRows)
}

func formatSlots(slots []cluster.SlotRange) string {
	if len(slots) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(slots))
	for _, r := range slots {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ",")
}

func (m model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("📡 KV Cluster Monitor"))
	s.WriteString("\n\n")

	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	switch m.currentView {
	case dashboardView:
		s.WriteString(m.renderDashboard())
	case nodesView:
		s.WriteString(m.renderNodes())
	case poolsView:
		s.WriteString(m.renderPools())
	case eventsView:
		s.WriteString(m.renderEvents())
	}

	if m.message != "" {
		s.WriteString("\n\n")
		if m.messageErr {
			s.WriteString(errorStyle.Render("✗ " + m.message))
		} else {
			s.WriteString(successStyle.Render("✓ " + m.message))
		}
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))

	return s.String()
}

func (m model) renderTabs() string {
	tabs := []string{"Dashboard", "Nodes", "Pools", "Events"}
	var renderedTabs []string

	for i, tab := range tabs {
		if view(i) == m.currentView {
			renderedTabs = append(renderedTabs, activeTabStyle.Render(tab))
		} else {
			renderedTabs = append(renderedTabs, inactiveTabStyle.Render(tab))
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, renderedTabs...)
}

func (m model) renderDashboard() string {
	uptime := time.Since(m.startTime).Round(time.Second)

	var clusterContent string
	if m.snap == nil {
		clusterContent = `📊 Cluster
━━━━━━━━━━━━━━━
Waiting for the
first topology...`
	} else {
		cov := m.snap.Topology.Coverage()
		percent := float64(cov.Served) / float64(cluster.SlotCount) * 100
		clusterContent = fmt.Sprintf(`📊 Cluster
━━━━━━━━━━━━━━━
Version:   %d
Nodes:     %d (%d masters)
Coverage:  %d/%d (%.1f%%)
Snapshot:  %s old
Source:    %s`,
			m.snap.Version,
			m.snap.Topology.Size(),
			m.snap.Topology.MasterCount(),
			cov.Served, cluster.SlotCount, percent,
			m.snap.Age().Round(time.Second),
			m.snap.Source,
		)
	}

	var active, idle int
	for _, s := range m.stats {
		active += s.Active
		idle += s.Idle
	}

	clientContent := fmt.Sprintf(`⚡ Client
━━━━━━━━━━━━━━━
Pools:     %d open
Active:    %d
Idle:      %d
Events:    %d
Uptime:    %s

[tab]  switch view
[r]    refresh now
[q]    quit`,
		len(m.stats),
		active,
		idle,
		m.jnl.Count(),
		uptime,
	)

	clusterBox := statsBoxStyle.Render(clusterContent)
	clientBox := statsBoxStyle.Render(clientContent)

	return contentStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Top, clusterBox, clientBox),
	)
}

func (m model) renderNodes() string {
	var s strings.Builder

	s.WriteString(headerStyle.Render("Cluster Nodes"))
	s.WriteString("\n\n")
	s.WriteString(m.nodeTable.View())
	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Navigate with ↑/↓ • Press 'r' to refresh"))

	return contentStyle.Render(s.String())
}

func (m model) renderPools() string {
	var s strings.Builder

	s.WriteString(headerStyle.Render("Connection Pools"))
	s.WriteString("\n\n")

	if len(m.stats) == 0 {
		s.WriteString(helpStyle.Render("No pools open yet. Pools appear once commands flow."))
	} else {
		s.WriteString(m.poolTable.View())
	}

	return contentStyle.Render(s.String())
}

func (m model) renderEvents() string {
	var s strings.Builder

	s.WriteString(headerStyle.Render("Recent Events"))
	s.WriteString("\n\n")

	if m.jnl.Count() == 0 {
		s.WriteString(helpStyle.Render("No events recorded yet."))
	} else {
		s.WriteString(m.eventTable.View())
	}

	return contentStyle.Render(s.String())
}

func main() {
	fs := flag.NewFlagSet("kvclient-top", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("KVCLIENT_CONFIG"), "Client config file")
	seeds := fs.String("seeds", os.Getenv("KVCLIENT_SEEDS"), "Comma-separated seed addresses")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	fs.Parse(os.Args[1:])

	var cfg config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	} else {
		cfg = config.DefaultConfig()
	}
	if *seeds != "" {
		cfg.Cluster.Seeds = strings.Split(*seeds, ",")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	jnl := journal.New(256)

	opts, err := kv.FromConfig(&cfg)
	if err != nil {
		log.Fatalf("Invalid client options: %v", err)
	}
	opts.EventSink = jnl
	opts.Observer = jnl

	client, err := kv.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open client: %v", err)
	}
	defer client.Close()

	p := tea.NewProgram(initialModel(client, jnl, *interval), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}
}
