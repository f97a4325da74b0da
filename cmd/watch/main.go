// Command watch is a terminal dashboard over the bot's HTTP API. It polls
// /healthz, /api/v1/stats, /api/v1/positions and /api/v1/executions and
// renders them; it never talks to Polymarket itself, so it is safe to run
// next to a live bot.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/betbot/copytrader/pkg/config"
)

const executionRows = 12

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	openStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2"))

	closeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// Payload mirrors of the bot's API responses.

type statsPayload struct {
	Enabled          bool            `json:"enabled"`
	DryRun           bool            `json:"dryRun"`
	TotalExecuted    int64           `json:"totalExecuted"`
	TotalFailed      int64           `json:"totalFailed"`
	TotalVolume      decimal.Decimal `json:"totalVolume"`
	TradersMonitored int             `json:"tradersMonitored"`
	ActivePositions  int             `json:"activePositions"`
	LastTradeTime    time.Time       `json:"lastTradeTime"`
}

type sourcePayload struct {
	Source        string          `json:"source"`
	Label         string          `json:"label"`
	LastPollAt    time.Time       `json:"lastPollAt"`
	LastError     string          `json:"lastError"`
	Polls         int64           `json:"polls"`
	Failures      int64           `json:"failures"`
	OpenPositions int             `json:"openPositions"`
	TotalValue    decimal.Decimal `json:"totalValue"`
}

type executionPayload struct {
	PositionID string          `json:"positionId"`
	Source     string          `json:"source"`
	Side       string          `json:"side"`
	Outcome    string          `json:"outcome"`
	OrderID    string          `json:"orderId"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Retries    int             `json:"retries"`
	Error      string          `json:"error"`
	DryRun     bool            `json:"dryRun"`
	ExecutedAt time.Time       `json:"executedAt"`
}

type healthPayload struct {
	Status string `json:"status"`
	Stream string `json:"stream"`
}

// Messages

type tickMsg time.Time

type refreshMsg struct {
	health     healthPayload
	stats      statsPayload
	sources    []sourcePayload
	executions []executionPayload
	at         time.Time
}

type fetchErrMsg struct{ err error }

type model struct {
	api      *apiClient
	interval time.Duration

	health     healthPayload
	stats      statsPayload
	sources    []sourcePayload
	executions []executionPayload

	updatedAt time.Time
	err       error
}

func initialModel(api *apiClient, interval time.Duration) model {
	return model{api: api, interval: interval}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchCmd(m.api), tickCmd(m.interval))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			return m, fetchCmd(m.api)
		}

	case tickMsg:
		return m, tea.Batch(fetchCmd(m.api), tickCmd(m.interval))

	case refreshMsg:
		m.health = msg.health
		m.stats = msg.stats
		m.sources = msg.sources
		m.executions = msg.executions
		m.updatedAt = msg.at
		m.err = nil
		return m, nil

	case fetchErrMsg:
		// Keep the stale data on screen; the header shows the failure.
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

func (m model) View() string {
	var s strings.Builder

	s.WriteString(m.renderHeader())
	s.WriteString("\n\n")

	if m.updatedAt.IsZero() {
		s.WriteString("connecting...\n\npress q to quit")
		return s.String()
	}

	s.WriteString(m.renderStats())
	s.WriteString("\n\n")

	boxes := make([]string, 0, len(m.sources))
	for _, src := range m.sources {
		boxes = append(boxes, renderSource(src))
	}
	if len(boxes) > 0 {
		s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
		s.WriteString("\n\n")
	}

	s.WriteString(m.renderExecutions())
	s.WriteString("\n")
	s.WriteString(dimStyle.Render("q quit  r refresh"))

	return s.String()
}

func (m model) renderHeader() string {
	mode := "LIVE"
	if m.stats.DryRun {
		mode = "DRY-RUN"
	}
	if !m.stats.Enabled {
		mode = "DISABLED"
	}

	parts := []string{"copytrader", mode}
	if m.health.Stream != "" {
		parts = append(parts, "stream: "+m.health.Stream)
	}
	if !m.updatedAt.IsZero() {
		parts = append(parts, fmt.Sprintf("updated %s ago", time.Since(m.updatedAt).Round(time.Second)))
	}
	if m.err != nil {
		parts = append(parts, fmt.Sprintf("API UNREACHABLE: %v", m.err))
	}
	return headerStyle.Render(strings.Join(parts, " | "))
}

func (m model) renderStats() string {
	last := "never"
	if !m.stats.LastTradeTime.IsZero() {
		last = m.stats.LastTradeTime.Format("15:04:05")
	}
	return fmt.Sprintf("executed %d  failed %d  volume $%s  holding %d  last trade %s",
		m.stats.TotalExecuted,
		m.stats.TotalFailed,
		m.stats.TotalVolume.StringFixed(2),
		m.stats.ActivePositions,
		last,
	)
}

func renderSource(src sourcePayload) string {
	var s strings.Builder

	name := src.Label
	if name == "" {
		name = shortAddr(src.Source)
	}
	s.WriteString(titleStyle.Render(name))
	s.WriteString("\n")
	s.WriteString(dimStyle.Render(shortAddr(src.Source)))
	s.WriteString("\n\n")

	s.WriteString(fmt.Sprintf("positions  %d\n", src.OpenPositions))
	s.WriteString(fmt.Sprintf("value      $%s\n", src.TotalValue.StringFixed(2)))
	s.WriteString(fmt.Sprintf("polls      %d", src.Polls))
	if src.Failures > 0 {
		s.WriteString(failStyle.Render(fmt.Sprintf("  (%d failed)", src.Failures)))
	}
	s.WriteString("\n")

	if src.LastPollAt.IsZero() {
		s.WriteString(dimStyle.Render("waiting for first poll"))
	} else {
		s.WriteString(dimStyle.Render(fmt.Sprintf("polled %s ago", time.Since(src.LastPollAt).Round(time.Second))))
	}
	if src.LastError != "" {
		s.WriteString("\n")
		s.WriteString(failStyle.Render(truncate(src.LastError, 36)))
	}

	return borderStyle.Render(s.String())
}

func (m model) renderExecutions() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("recent executions"))
	s.WriteString("\n")

	if len(m.executions) == 0 {
		s.WriteString(dimStyle.Render("  none yet"))
		return s.String()
	}

	for i, ex := range m.executions {
		if i >= executionRows {
			break
		}
		side := openStyle.Render("open ")
		if ex.Side == "close" {
			side = closeStyle.Render("close")
		}

		detail := ex.OrderID
		if ex.DryRun {
			detail = "dry-run"
		}
		outcome := ex.Outcome
		if ex.Outcome == "failed" {
			outcome = failStyle.Render("failed")
			detail = truncate(ex.Error, 44)
		}

		s.WriteString(fmt.Sprintf("  %s  %s  %-9s  %8s @ %s  %s  %s\n",
			ex.ExecutedAt.Format("15:04:05"),
			side,
			truncate(ex.PositionID, 9),
			ex.Quantity.StringFixed(2),
			ex.Price.StringFixed(3),
			outcome,
			dimStyle.Render(detail),
		))
	}
	return s.String()
}

func shortAddr(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:8] + ".." + addr[len(addr)-4:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-2] + ".."
}

// Commands

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchCmd(api *apiClient) tea.Cmd {
	return func() tea.Msg {
		var (
			health  healthPayload
			stats   statsPayload
			sources struct {
				Sources []sourcePayload `json:"sources"`
			}
			executions struct {
				Executions []executionPayload `json:"executions"`
			}
		)
		if err := api.getJSON("/healthz", &health); err != nil {
			return fetchErrMsg{err}
		}
		if err := api.getJSON("/api/v1/stats", &stats); err != nil {
			return fetchErrMsg{err}
		}
		if err := api.getJSON("/api/v1/positions", &sources); err != nil {
			return fetchErrMsg{err}
		}
		if err := api.getJSON(fmt.Sprintf("/api/v1/executions?limit=%d", executionRows), &executions); err != nil {
			return fetchErrMsg{err}
		}
		return refreshMsg{
			health:     health,
			stats:      stats,
			sources:    sources.Sources,
			executions: executions.Executions,
			at:         time.Now(),
		}
	}
}

type apiClient struct {
	http *resty.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{http: resty.New().SetBaseURL(base).SetTimeout(5 * time.Second)}
}

func (c *apiClient) getJSON(path string, v any) error {
	resp, err := c.http.R().SetResult(v).Get(path)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%s: status %d", path, resp.StatusCode())
	}
	return nil
}

func main() {
	configPath := flag.String("config", "", "config file path")
	addr := flag.String("addr", "", "bot API address (default: server addr from config)")
	interval := flag.Duration("interval", 2*time.Second, "refresh interval")
	flag.Parse()

	target := *addr
	if target == "" {
		if *configPath != "" {
			config.SetConfigPath(*configPath)
		}
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		target = cfg.Server.Addr
	}
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	target = strings.TrimRight(target, "/")

	if len(os.Getenv("DEBUG")) > 0 {
		f, err := tea.LogToFile("debug.log", "debug")
		if err != nil {
			fmt.Fprintf(os.Stderr, "debug log: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
	}

	api := newAPIClient(target)
	p := tea.NewProgram(initialModel(api, *interval), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		os.Exit(1)
	}
}
