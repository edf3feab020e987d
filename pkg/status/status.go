// Package status reports run state and resource usage per service, streams
// service logs, and tears the fleet down.
package status

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/go-go-golems/fleetctl/pkg/compose"
	"github.com/go-go-golems/fleetctl/pkg/registry"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	StateNotCreated = "not created"
	unknown         = "-"
)

type Source interface {
	Ps(ctx context.Context) ([]compose.Container, error)
	Stats(ctx context.Context, containers []string) (map[string]compose.Stats, error)
}

type ServiceStatus struct {
	Service  string `json:"service"`
	Role     string `json:"role"`
	State    string `json:"state"`
	Health   string `json:"health,omitempty"`
	CPU      string `json:"cpu"`
	Memory   string `json:"memory"`
	Address  string `json:"address,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

func (s ServiceStatus) Running() bool { return s.State == "running" }

type Reporter struct {
	fleet registry.Fleet
	src   Source
}

func NewReporter(fleet registry.Fleet, src Source) *Reporter {
	return &Reporter{fleet: fleet, src: src}
}

// Status returns one row per fleet service in start order. Resource usage is
// best effort: a failed stats sample leaves the columns unknown.
func (r *Reporter) Status(ctx context.Context) ([]ServiceStatus, error) {
	containers, err := r.src.Ps(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list containers")
	}
	byService := map[string]compose.Container{}
	var running []string
	for _, c := range containers {
		byService[c.Service] = c
		if c.Running() {
			running = append(running, c.Name)
		}
	}

	stats := map[string]compose.Stats{}
	if len(running) > 0 {
		stats, err = r.src.Stats(ctx, running)
		if err != nil {
			log.Debug().Err(err).Msg("docker stats failed")
			stats = map[string]compose.Stats{}
		}
	}

	out := make([]ServiceStatus, 0, r.fleet.Len())
	for _, svc := range r.fleet.All() {
		row := ServiceStatus{
			Service:  svc.Name,
			Role:     string(svc.Role),
			State:    StateNotCreated,
			CPU:      unknown,
			Memory:   unknown,
			Address:  svc.Address,
			Optional: svc.Optional,
		}
		if c, ok := byService[svc.Name]; ok {
			row.State = c.State
			row.Health = c.Health
			if st, ok := stats[c.Name]; ok {
				row.CPU = orUnknown(st.CPUPerc)
				row.Memory = orUnknown(st.MemUsage)
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// Report writes the status table followed by the access points.
func (r *Reporter) Report(ctx context.Context, w io.Writer) error {
	rows, err := r.Status(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, RenderTable(rows))
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, RenderAccessPoints(rows))
	return err
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	upStyle     = cellStyle.Foreground(lipgloss.Color("#22C55E"))
	downStyle   = cellStyle.Foreground(lipgloss.Color("#EF4444"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

func RenderTable(rows []ServiceStatus) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("SERVICE", "ROLE", "STATE", "HEALTH", "CPU", "MEMORY").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 && row >= 0 && row < len(rows) {
				if rows[row].Running() {
					return upStyle
				}
				return downStyle
			}
			return cellStyle
		})
	for _, r := range rows {
		health := r.Health
		if health == "" {
			health = unknown
		}
		name := r.Service
		if r.Optional {
			name += " (optional)"
		}
		t.Row(name, r.Role, r.State, health, r.CPU, r.Memory)
	}
	return t.Render()
}

func RenderAccessPoints(rows []ServiceStatus) string {
	var b strings.Builder
	b.WriteString("Access points:\n")
	for _, r := range rows {
		if r.Address == "" {
			continue
		}
		fmt.Fprintf(&b, "  %-10s %s\n", r.Service, r.Address)
	}
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknown
	}
	return s
}
