// Package main provides a terminal dashboard that polls a running Helmsman
// instance's health endpoint and renders live pool/session/resource state.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

// healthSnapshot mirrors the JSON body the Handler's GET /healthz returns.
// Kept as a local decode target (rather than importing internal/handlers)
// since this command only ever talks to a running instance over HTTP.
type healthSnapshot struct {
	Status      string `json:"status"`
	Sessions    int    `json:"sessions"`
	MaxSessions int    `json:"max_sessions"`
	Pool        struct {
		Acquired int64 `json:"Acquired"`
		Released int64 `json:"Released"`
		Recycled int64 `json:"Recycled"`
		Errors   int64 `json:"Errors"`
	} `json:"pool"`
	PoolSize     int `json:"pool_size"`
	PoolAvail    int `json:"pool_available"`
	ResourceInfo *struct {
		System struct {
			CPUPercent         float64 `json:"CPUPercent"`
			MemoryPercent      float64 `json:"MemoryPercent"`
			MemoryAvailableGiB float64 `json:"MemoryAvailableGiB"`
		} `json:"System"`
		TotalRequests   int64   `json:"TotalRequests"`
		SuccessRate     float64 `json:"SuccessRate"`
		AvgResponseTime int64   `json:"AvgResponseTime"`
	} `json:"resource_summary,omitempty"`
}

type pollResult struct {
	snapshot healthSnapshot
	err      error
	latency  time.Duration
}

type tickMsg time.Time

type model struct {
	addr     string
	interval time.Duration
	client   *http.Client

	last    pollResult
	polls   int
	width   int
	quitted bool
}

func newModel(addr string, interval time.Duration) model {
	return model{
		addr:     addr,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.poll(), tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) }))
}

func (m model) poll() tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		resp, err := m.client.Get(m.addr + "/healthz")
		if err != nil {
			return pollResult{err: err, latency: time.Since(start)}
		}
		defer resp.Body.Close()

		var snap healthSnapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			return pollResult{err: err, latency: time.Since(start)}
		}
		return pollResult{snapshot: snap, latency: time.Since(start)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitted = true
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.poll(), tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) }))

	case pollResult:
		m.last = msg
		m.polls++
		return m, nil
	}
	return m, nil
}

func (m model) View() string {
	if m.quitted {
		return ""
	}

	header := titleStyle.Render("Helmsman Dashboard") + "  " + labelStyle.Render(m.addr)

	if m.last.err != nil {
		body := boxStyle.Render(errStyle.Render("unreachable: ") + m.last.err.Error())
		return header + "\n\n" + body + "\n\n" + labelStyle.Render("q to quit")
	}

	if m.polls == 0 {
		return header + "\n\n" + labelStyle.Render("connecting...")
	}

	snap := m.last.snapshot
	statusLine := okStyle.Render(snap.Status)
	if snap.Status != "ok" {
		statusLine = warnStyle.Render(snap.Status)
	}

	pool := fmt.Sprintf(
		"%s %d/%d available   %s %d acquired / %d recycled / %d errors",
		labelStyle.Render("pool:"), snap.PoolAvail, snap.PoolSize,
		labelStyle.Render("stats:"), snap.Pool.Acquired, snap.Pool.Recycled, snap.Pool.Errors,
	)
	sessions := fmt.Sprintf("%s %d/%d", labelStyle.Render("sessions:"), snap.Sessions, snap.MaxSessions)

	lines := []string{
		labelStyle.Render("status:") + " " + statusLine,
		pool,
		sessions,
	}

	if snap.ResourceInfo != nil {
		r := snap.ResourceInfo
		lines = append(lines,
			fmt.Sprintf("%s %.1f%%   %s %.1f%% (%.1f GiB free)",
				labelStyle.Render("cpu:"), r.System.CPUPercent,
				labelStyle.Render("mem:"), r.System.MemoryPercent, r.System.MemoryAvailableGiB),
			fmt.Sprintf("%s %d   %s %.1f%%   %s %s",
				labelStyle.Render("requests:"), r.TotalRequests,
				labelStyle.Render("success:"), r.SuccessRate*100,
				labelStyle.Render("avg:"), time.Duration(r.AvgResponseTime)),
		)
	}

	lines = append(lines, labelStyle.Render(fmt.Sprintf("poll #%d · %s round-trip", m.polls, m.last.latency.Round(time.Millisecond))))

	body := boxStyle.Render(joinLines(lines))
	return header + "\n\n" + body + "\n\n" + labelStyle.Render("q to quit")
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8191", "base URL of the Helmsman instance to monitor")
	interval := flag.Duration("interval", 2*time.Second, "poll interval")
	flag.Parse()

	p := tea.NewProgram(newModel(*addr, *interval))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard error: %v\n", err)
		os.Exit(1)
	}
}
