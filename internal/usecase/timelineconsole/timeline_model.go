package timelineconsole

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"qcflags/internal/bootstrap/logging"
	domainqcflag "qcflags/internal/domain/qcflag"
	"qcflags/internal/ports"
	"qcflags/internal/usecase/qcflag"
)

const maxActionLines = 6

// Service is the part of the QC flag service the console drives.
type Service interface {
	GetEffectivePeriods(context.Context, qcflag.EffectivePeriodsQuery) (qcflag.EffectivePeriodsResult, error)
	GetDetectorSummary(context.Context, qcflag.DetectorSummaryQuery) (qcflag.DetectorSummary, error)
	DiscardFlag(context.Context, qcflag.DiscardFlagInput) (ports.Flag, error)
	VerifyFlag(context.Context, qcflag.VerifyFlagInput) (ports.Verification, error)
}

type TimelineOptions struct {
	RunNumber        int64
	DataPassID       *int64
	SimulationPassID *int64
	ActorID          int64
	RefreshInterval  time.Duration
}

type timelineModel struct {
	ctx             context.Context
	service         Service
	runNumber       int64
	dataPassID      *int64
	simPassID       *int64
	actorID         int64
	refreshInterval time.Duration

	run           ports.Run
	timelines     []qcflag.DetectorTimeline
	detectorIndex int
	segmentIndex  int
	summary       qcflag.DetectorSummary
	hasSummary    bool
	status        string
	actionLog     []string
}

type timelineLoadedMsg struct {
	result qcflag.EffectivePeriodsResult
	err    error
}

type summaryLoadedMsg struct {
	detectorID int64
	summary    qcflag.DetectorSummary
	err        error
}

type tickMsg struct{}

type actionDoneMsg struct {
	action string
	flagID int64
	err    error
}

func NewTimelineModel(ctx context.Context, service Service, options TimelineOptions) tea.Model {
	interval := options.RefreshInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	return &timelineModel{
		ctx:             logging.WithAttrs(ctx, slog.String("component", "console.timeline"), slog.Int64("run_number", options.RunNumber)),
		service:         service,
		runNumber:       options.RunNumber,
		dataPassID:      options.DataPassID,
		simPassID:       options.SimulationPassID,
		actorID:         options.ActorID,
		refreshInterval: interval,
		status:          "loading",
	}
}

func (m *timelineModel) Init() tea.Cmd {
	return tea.Batch(m.loadTimelineCmd(), m.tickCmd())
}

func (m *timelineModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case tickMsg:
		return m, tea.Batch(m.loadTimelineCmd(), m.tickCmd())
	case timelineLoadedMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.run = msg.result.Run
		m.timelines = msg.result.Detectors
		if len(m.timelines) == 0 {
			m.detectorIndex, m.segmentIndex = 0, 0
			m.hasSummary = false
			m.status = "run has no QC detectors"
			return m, nil
		}
		m.detectorIndex = clamp(m.detectorIndex, len(m.timelines))
		m.segmentIndex = clamp(m.segmentIndex, len(m.timelines[m.detectorIndex].Segments))
		m.status = fmt.Sprintf("refreshed, %d detectors", len(m.timelines))
		return m, m.loadSummaryCmd()
	case summaryLoadedMsg:
		current, ok := m.selectedDetector()
		if !ok || current.Detector.ID != msg.detectorID {
			return m, nil
		}
		if msg.err != nil {
			m.hasSummary = false
			m.status = "summary failed: " + msg.err.Error()
			return m, nil
		}
		m.summary = msg.summary
		m.hasSummary = true
		return m, nil
	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			m.appendActionLog(fmt.Sprintf("%s flag=%d failed: %v", msg.action, msg.flagID, msg.err))
			return m, nil
		}
		m.status = fmt.Sprintf("%s done", msg.action)
		m.appendActionLog(fmt.Sprintf("%s flag=%d", msg.action, msg.flagID))
		return m, m.loadTimelineCmd()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "g":
			m.status = "refreshing"
			return m, m.loadTimelineCmd()
		case "up", "k":
			if m.detectorIndex > 0 {
				m.detectorIndex--
				m.segmentIndex = 0
				return m, m.loadSummaryCmd()
			}
			return m, nil
		case "down", "j":
			if m.detectorIndex < len(m.timelines)-1 {
				m.detectorIndex++
				m.segmentIndex = 0
				return m, m.loadSummaryCmd()
			}
			return m, nil
		case "left", "h":
			if m.segmentIndex > 0 {
				m.segmentIndex--
			}
			return m, nil
		case "right", "l":
			if detector, ok := m.selectedDetector(); ok && m.segmentIndex < len(detector.Segments)-1 {
				m.segmentIndex++
			}
			return m, nil
		case "v":
			return m, m.verifyCmd()
		case "x":
			return m, m.discardCmd()
		}
	}
	return m, nil
}

func (m *timelineModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62"))

	var builder strings.Builder
	builder.WriteString(titleStyle.Render(fmt.Sprintf("Run %d QC timeline", m.runNumber)))
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render(fmt.Sprintf(
		"window=%s scope=%s refresh=%s",
		domainqcflag.Period{From: m.run.QcTimeStart, To: m.run.QcTimeEnd},
		m.passLabel(),
		m.refreshInterval,
	)))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Detectors"))
	builder.WriteString("\n")
	if len(m.timelines) == 0 {
		builder.WriteString(dimStyle.Render("- no detectors"))
		builder.WriteString("\n\n")
	} else {
		for index, timeline := range m.timelines {
			line := fmt.Sprintf("%-5s %s", timeline.Detector.Name, qualityStrip(timeline.Segments))
			if index == m.detectorIndex {
				builder.WriteString(selectedStyle.Render("> " + line))
			} else {
				builder.WriteString("  " + line)
			}
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Segments"))
	builder.WriteString("\n")
	if detector, ok := m.selectedDetector(); ok {
		for index, segment := range detector.Segments {
			line := describeSegment(segment)
			if index == m.segmentIndex {
				builder.WriteString(selectedStyle.Render("> " + line))
			} else {
				builder.WriteString("  " + line)
			}
			builder.WriteString("\n")
		}
	} else {
		builder.WriteString(dimStyle.Render("- none"))
		builder.WriteString("\n")
	}
	builder.WriteString("\n")

	builder.WriteString(sectionStyle.Render("Summary"))
	builder.WriteString("\n")
	if !m.hasSummary {
		builder.WriteString(dimStyle.Render("- no summary"))
		builder.WriteString("\n\n")
	} else {
		summary := m.summary.Summary
		builder.WriteString(fmt.Sprintf("bad=%s not-bad=%s undefined=%s\n",
			percent(summary.BadEffectiveRunCoverage),
			percent(summary.ExplicitlyNotBadEffectiveRunCoverage),
			percent(summary.UndefinedQualityCoverage),
		))
		builder.WriteString(fmt.Sprintf("missing verifications=%d mc reproducible=%t\n\n",
			summary.MissingVerificationsCount, summary.MCReproducible))
	}

	builder.WriteString(sectionStyle.Render("Status"))
	builder.WriteString("\n")
	builder.WriteString("- " + firstNonEmpty(m.status, "ready"))
	builder.WriteString("\n\n")

	if len(m.actionLog) > 0 {
		builder.WriteString(sectionStyle.Render("Actions"))
		builder.WriteString("\n")
		for _, line := range m.actionLog {
			builder.WriteString("- " + line + "\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(dimStyle.Render("Keys: ↑/k ↓/j detector  ←/h →/l segment  v verify  x discard  g refresh  q quit"))
	return builder.String()
}

func (m *timelineModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *timelineModel) loadTimelineCmd() tea.Cmd {
	query := qcflag.EffectivePeriodsQuery{
		RunNumber:        m.runNumber,
		DataPassID:       m.dataPassID,
		SimulationPassID: m.simPassID,
	}
	return func() tea.Msg {
		result, err := m.service.GetEffectivePeriods(m.ctx, query)
		return timelineLoadedMsg{result: result, err: err}
	}
}

func (m *timelineModel) loadSummaryCmd() tea.Cmd {
	detector, ok := m.selectedDetector()
	if !ok {
		return nil
	}
	query := qcflag.DetectorSummaryQuery{
		RunNumber:        m.runNumber,
		DetectorID:       detector.Detector.ID,
		DataPassID:       m.dataPassID,
		SimulationPassID: m.simPassID,
	}
	return func() tea.Msg {
		summary, err := m.service.GetDetectorSummary(m.ctx, query)
		return summaryLoadedMsg{detectorID: query.DetectorID, summary: summary, err: err}
	}
}

func (m *timelineModel) verifyCmd() tea.Cmd {
	flag, ok := m.selectedFlag()
	if !ok {
		m.status = "selected segment has no flag"
		return nil
	}
	if flag.Verified {
		m.status = "flag already verified"
		return nil
	}
	flagID := flag.FlagID
	m.status = "verifying"
	return func() tea.Msg {
		_, err := m.service.VerifyFlag(m.ctx, qcflag.VerifyFlagInput{
			FlagID:  flagID,
			UserID:  m.actorID,
			Comment: "console verification",
		})
		return actionDoneMsg{action: "verify", flagID: flagID, err: err}
	}
}

func (m *timelineModel) discardCmd() tea.Cmd {
	flag, ok := m.selectedFlag()
	if !ok {
		m.status = "selected segment has no flag"
		return nil
	}
	flagID := flag.FlagID
	m.status = "discarding"
	return func() tea.Msg {
		_, err := m.service.DiscardFlag(m.ctx, qcflag.DiscardFlagInput{
			FlagID:  flagID,
			ActorID: m.actorID,
			Comment: "console discard",
		})
		return actionDoneMsg{action: "discard", flagID: flagID, err: err}
	}
}

func (m *timelineModel) selectedDetector() (qcflag.DetectorTimeline, bool) {
	if m.detectorIndex < 0 || m.detectorIndex >= len(m.timelines) {
		return qcflag.DetectorTimeline{}, false
	}
	return m.timelines[m.detectorIndex], true
}

func (m *timelineModel) selectedFlag() (qcflag.FlagSummary, bool) {
	detector, ok := m.selectedDetector()
	if !ok || m.segmentIndex < 0 || m.segmentIndex >= len(detector.Segments) {
		return qcflag.FlagSummary{}, false
	}
	segment := detector.Segments[m.segmentIndex]
	if segment.Flag == nil {
		return qcflag.FlagSummary{}, false
	}
	return *segment.Flag, true
}

func (m *timelineModel) passLabel() string {
	switch {
	case m.dataPassID != nil:
		return fmt.Sprintf("data-pass:%d", *m.dataPassID)
	case m.simPassID != nil:
		return fmt.Sprintf("simulation-pass:%d", *m.simPassID)
	default:
		return "synchronous"
	}
}

func (m *timelineModel) appendActionLog(line string) {
	m.actionLog = append(m.actionLog, time.Now().Format("15:04:05")+" "+line)
	if len(m.actionLog) > maxActionLines {
		m.actionLog = m.actionLog[len(m.actionLog)-maxActionLines:]
	}
}

func describeSegment(segment qcflag.TimelineSegment) string {
	if segment.Flag == nil {
		return fmt.Sprintf("%s undefined", segment.Period)
	}
	verified := ""
	if segment.Flag.Verified {
		verified = " verified"
	}
	return fmt.Sprintf("%s %s #%d%s", segment.Period, segment.Flag.FlagTypeName, segment.Flag.FlagID, verified)
}

// qualityStrip renders one rune per segment: B bad, G not bad, ? undefined.
func qualityStrip(segments []qcflag.TimelineSegment) string {
	var builder strings.Builder
	for _, segment := range segments {
		switch segment.Quality {
		case domainqcflag.QualityBad:
			builder.WriteByte('B')
		case domainqcflag.QualityNotBad:
			builder.WriteByte('G')
		default:
			builder.WriteByte('?')
		}
	}
	return builder.String()
}

func percent(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *v*100)
}

func clamp(index int, length int) int {
	if length == 0 || index < 0 {
		return 0
	}
	if index >= length {
		return length - 1
	}
	return index
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
