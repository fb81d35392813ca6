// Package ui is the terminal dashboard: a visit picker fed by
// background discovery, build controls, and the per-spectrograph
// result panels.
package ui

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/time/rate"

	"github.com/obsproc/quicklook/internal/cache"
	"github.com/obsproc/quicklook/internal/config"
	"github.com/obsproc/quicklook/internal/datastore"
	"github.com/obsproc/quicklook/internal/discovery"
	"github.com/obsproc/quicklook/internal/logging"
	"github.com/obsproc/quicklook/internal/pipeline"
	"github.com/obsproc/quicklook/internal/session"
	"github.com/obsproc/quicklook/internal/uiloop"
)

// pollPeriod is how often the UI checks background work for results.
const pollPeriod = 500 * time.Millisecond

// buildTimeout bounds one array build request.
const buildTimeout = 2 * time.Minute

type focusArea int

const (
	focusVisits focusArea = iota
	focusCode
	focusFiber
)

// dashboard is the mutable UI state. It lives behind a pointer so the
// poll callbacks, which run inside Update via the manual loop, write
// to the same data the view reads.
type dashboard struct {
	visits       []datastore.Visit
	cursor       int
	newCount     int
	discovering  bool
	discoveryErr error
	note         string

	codes    []string
	codeIdx  int
	fibers   []int
	fiberIdx int

	specs  map[int]bool
	skySub bool
	scale  pipeline.Scale

	building bool
	builtFor datastore.Visit
	panels   []pipeline.ReducedPanel
	buildErr error
}

// visitApplier applies discovery outcomes to the dashboard. Selection
// survives a refresh when the selected visit is still present.
type visitApplier struct {
	d *dashboard
}

func (a *visitApplier) ApplyVisits(visits []datastore.Visit, newCount int) {
	var selected datastore.Visit
	if a.d.cursor < len(a.d.visits) {
		selected = a.d.visits[a.d.cursor]
	}
	a.d.visits = visits
	a.d.newCount = newCount
	a.d.discovering = false
	a.d.discoveryErr = nil
	a.d.cursor = 0
	for i, v := range visits {
		if v == selected {
			a.d.cursor = i
			break
		}
	}
	if newCount > 0 {
		a.d.note = fmt.Sprintf("%d visits, %d new", len(visits), newCount)
	} else {
		a.d.note = fmt.Sprintf("%d visits", len(visits))
	}
}

func (a *visitApplier) ApplyEmpty() {
	a.d.visits = nil
	a.d.cursor = 0
	a.d.discovering = false
	a.d.discoveryErr = nil
	a.d.note = "no visits for this date"
}

func (a *visitApplier) ApplyError(err error) {
	// Keep the previously shown visits; a transient listing failure
	// should not blank the picker.
	a.d.discovering = false
	a.d.discoveryErr = err
}

// Model is the root Bubble Tea model.
type Model struct {
	cfg      *config.Config
	store    datastore.Store
	sessions *session.Manager
	sess     *session.State

	loop   *uiloop.Ticker
	worker *discovery.Worker
	poller *discovery.Poller

	dash    *dashboard
	obsDate string
	focus   focusArea
	spinner spinner.Model
	width   int
	height  int
}

// New creates the dashboard model. The session lives until the
// program exits.
func New(cfg *config.Config, store datastore.Store, sessions *session.Manager) Model {
	sess := sessions.Get("local")

	loop := uiloop.NewManualTicker()
	// Validation lookups are cheap but the registry is shared; keep the
	// burst bounded.
	opts := discovery.Options{
		Workers: cfg.Discovery.Workers,
		Limiter: rate.NewLimiter(200, 50),
	}
	worker := discovery.NewWorker(store, cfg.Store.BaseCollection, sess.Validity, opts, time.Minute)

	dash := &dashboard{
		specs:  map[int]bool{1: true, 2: true, 3: true, 4: true},
		skySub: true,
		scale:  pipeline.ScaleZ,
	}
	poller := discovery.NewPoller(worker, &visitApplier{d: dash}, loop, pollPeriod)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorHighlight)

	return Model{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		sess:     sess,
		loop:     loop,
		worker:   worker,
		poller:   poller,
		dash:     dash,
		obsDate:  cfg.EffectiveObsDate(time.Now()),
		spinner:  sp,
	}
}

// Init starts discovery and the poll tick.
func (m Model) Init() tea.Cmd {
	m.kickDiscovery()
	if interval := m.cfg.RefreshInterval(); interval > 0 {
		date := m.obsDate
		h := m.poller.AutoRefresh(context.Background(), interval, func() string { return date })
		m.sessions.Track(m.sess.ID, h)
	}
	return tea.Batch(m.tick(), m.spinner.Tick)
}

func (m Model) kickDiscovery() {
	if m.poller.Kick(context.Background(), m.obsDate) {
		m.dash.discovering = true
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		// All loop callbacks, including discovery result application,
		// run here on the UI goroutine.
		m.loop.Tick(time.Now())
		return m, m.tick()

	case VisitLoadedMsg:
		if msg.Err != nil {
			logging.Warn("Visit load failed", "visit", msg.Visit, "error", msg.Err)
			m.dash.buildErr = msg.Err
			m.dash.building = false
			return m, nil
		}
		m.applyLoadedVisit()
		return m, m.build(datastore.Visit(msg.Visit))

	case BuildDoneMsg:
		if m.dash.builtFor != datastore.Visit(msg.Visit) {
			// Stale result from a superseded request.
			return m, nil
		}
		m.dash.building = false
		m.dash.panels = msg.Panels
		m.dash.buildErr = msg.Err
		return m, nil

	case StoreChangedMsg:
		// The registry changed on disk; a kick while a run is in
		// flight is dropped, same as manual refresh.
		m.kickDiscovery()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.sessions.End(m.sess.ID)
		return m, tea.Quit

	case "tab":
		m.focus = (m.focus + 1) % 3
		if !m.sess.Loaded() {
			m.focus = focusVisits
		}

	case "up", "k":
		if m.focus == focusVisits && m.dash.cursor > 0 {
			m.dash.cursor--
		}

	case "down", "j":
		if m.focus == focusVisits && m.dash.cursor < len(m.dash.visits)-1 {
			m.dash.cursor++
		}

	case "left", "h":
		m.cycleSelector(-1)

	case "right", "l":
		m.cycleSelector(1)

	case "enter":
		if m.focus == focusVisits {
			if visit, ok := m.selectedVisit(); ok {
				return m, m.loadVisit(visit)
			}
		}

	case "r":
		m.kickDiscovery()

	case "esc":
		m.reset()
		m.focus = focusVisits

	case "1", "2", "3", "4":
		spec, _ := strconv.Atoi(msg.String())
		m.dash.specs[spec] = !m.dash.specs[spec]
		return m, m.rebuild()

	case "s":
		m.dash.skySub = !m.dash.skySub
		return m, m.rebuild()

	case "z":
		if m.dash.scale == pipeline.ScaleZ {
			m.dash.scale = pipeline.ScaleMinMax
		} else {
			m.dash.scale = pipeline.ScaleZ
		}
		return m, m.rebuild()
	}

	return m, nil
}

func (m Model) selectedVisit() (datastore.Visit, bool) {
	if m.dash.cursor < len(m.dash.visits) {
		return m.dash.visits[m.dash.cursor], true
	}
	return 0, false
}

// reset clears the loaded visit, its panels and selections. The visit
// picker and caches are untouched.
func (m Model) reset() {
	d := m.dash
	d.panels = nil
	d.buildErr = nil
	d.building = false
	d.builtFor = 0
	d.codes = nil
	d.fibers = nil
	d.codeIdx, d.fiberIdx = 0, 0
	m.sess.Reset()
}

// rebuild re-runs the build for the loaded visit after an option
// change.
func (m Model) rebuild() tea.Cmd {
	if visit := m.sess.Visit(); visit != 0 {
		return m.build(visit)
	}
	return nil
}

// cycleSelector moves the focused code or fiber selector and syncs
// its counterpart through the session guard.
func (m Model) cycleSelector(delta int) {
	d := m.dash
	switch m.focus {
	case focusCode:
		if len(d.codes) == 0 {
			return
		}
		d.codeIdx = (d.codeIdx + delta + len(d.codes)) % len(d.codes)
		m.onCodeChanged()
	case focusFiber:
		if len(d.fibers) == 0 {
			return
		}
		d.fiberIdx = (d.fiberIdx + delta + len(d.fibers)) % len(d.fibers)
		m.onFiberChanged()
	}
}

// onCodeChanged pushes the code selection into the fiber selector.
// The guard suppresses the fiber handler's echo.
func (m Model) onCodeChanged() {
	release, ok := m.sess.SyncGuard.Enter()
	if !ok {
		return
	}
	defer release()

	d := m.dash
	fibers := m.sess.FibersForCode(d.codes[d.codeIdx])
	if len(fibers) == 0 {
		return
	}
	m.setFiberValue(fibers[0])
}

func (m Model) setFiberValue(fiber int) {
	d := m.dash
	for i, f := range d.fibers {
		if f == fiber {
			d.fiberIdx = i
			m.onFiberChanged()
			return
		}
	}
}

// onFiberChanged pushes the fiber selection into the code selector.
func (m Model) onFiberChanged() {
	release, ok := m.sess.SyncGuard.Enter()
	if !ok {
		return
	}
	defer release()

	d := m.dash
	code, ok := m.sess.CodeForFiber(d.fibers[d.fiberIdx])
	if !ok {
		return
	}
	m.setCodeValue(code)
}

func (m Model) setCodeValue(code string) {
	d := m.dash
	for i, c := range d.codes {
		if c == code {
			d.codeIdx = i
			m.onCodeChanged()
			return
		}
	}
}

// applyLoadedVisit refreshes the selector contents from the session's
// freshly loaded lookup tables.
func (m Model) applyLoadedVisit() {
	d := m.dash
	d.codes = m.sess.Codes()
	d.fibers = d.fibers[:0]
	for _, code := range d.codes {
		d.fibers = append(d.fibers, m.sess.FibersForCode(code)...)
	}
	d.codeIdx, d.fiberIdx = 0, 0
	if len(d.codes) > 0 {
		m.onCodeChanged()
	}
}

// Commands

func (m Model) tick() tea.Cmd {
	return tea.Tick(pollPeriod, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

// loadVisit fetches the visit's configuration in the background,
// sharing the session's handle cache with builds.
func (m Model) loadVisit(visit datastore.Visit) tea.Cmd {
	m.dash.building = true
	m.dash.buildErr = nil
	store, base, sess := m.store, m.cfg.Store.BaseCollection, m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), buildTimeout)
		defer cancel()

		h, err := sess.Resources.Acquire(ctx, cache.HandleKey{BaseCollection: base, Visit: visit},
			func(ctx context.Context) (*datastore.Handle, error) {
				return store.Open(ctx, base, visit)
			})
		if err != nil {
			return VisitLoadedMsg{Visit: int(visit), Err: err}
		}
		if err := sess.LoadVisit(ctx, h); err != nil {
			return VisitLoadedMsg{Visit: int(visit), Err: err}
		}
		return VisitLoadedMsg{Visit: int(visit)}
	}
}

// build runs the array pipeline for the visit with the current
// options.
func (m Model) build(visit datastore.Visit) tea.Cmd {
	d := m.dash
	d.building = true
	d.builtFor = visit
	d.buildErr = nil

	var tasks []pipeline.BuildTask
	for spec := 1; spec <= 4; spec++ {
		if !d.specs[spec] {
			continue
		}
		for _, arm := range []pipeline.Arm{pipeline.ArmBlue, pipeline.ArmRed, pipeline.ArmNIR, pipeline.ArmMedRed} {
			tasks = append(tasks, pipeline.BuildTask{Spectrograph: spec, Arm: arm})
		}
	}

	opts := pipeline.BuildOptions{
		Store:          m.store,
		BaseCollection: m.cfg.Store.BaseCollection,
		Resources:      m.sess.Resources,
		Workers:        m.cfg.Build.Workers,
		Transform: pipeline.TransformOptions{
			Scale:        d.scale,
			SubtractSky:  d.skySub,
			AsinhStretch: true,
		},
	}

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), buildTimeout)
		defer cancel()

		grouped, err := pipeline.Build(ctx, visit, tasks, opts)
		if err != nil {
			return BuildDoneMsg{Visit: int(visit), Err: err}
		}
		panels, err := pipeline.ReduceAll(grouped)
		return BuildDoneMsg{Visit: int(visit), Panels: panels, Err: err}
	}
}

// View renders the UI.
func (m Model) View() string {
	var sections []string

	header := fmt.Sprintf("  QUICKLOOK  ·  %s  ·  %s  ·  %d visits",
		m.cfg.Store.BaseCollection, m.obsDate, len(m.dash.visits))
	sections = append(sections, Header.Width(m.width).Render(header))

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderVisitList(),
		m.renderPanels(),
	)
	sections = append(sections, body)

	if m.sess.Loaded() {
		sections = append(sections, m.renderSelectors())
	}
	sections = append(sections, StatusBar.Width(m.width).Render(m.renderStatus()))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderVisitList() string {
	d := m.dash
	var rows []string
	title := "Visits"
	if d.discovering {
		title = "Visits " + m.spinner.View()
	}
	rows = append(rows, PanelTitle.Render(title))

	if len(d.visits) == 0 {
		rows = append(rows, MissingNote.Render(d.note))
	}
	for i, v := range d.visits {
		label := strconv.Itoa(int(v))
		if m.sess.Visit() == v {
			label += " *"
		}
		if i == d.cursor && m.focus == focusVisits {
			rows = append(rows, SelectedVisit.Render(label))
		} else {
			rows = append(rows, NormalVisit.Render(label))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) renderPanels() string {
	d := m.dash
	var rows []string

	if d.building {
		rows = append(rows, PanelTitle.Render("Building "+m.spinner.View()))
		return lipgloss.JoinVertical(lipgloss.Left, rows...)
	}
	if d.buildErr != nil {
		rows = append(rows, ErrorStyle.Render("Build failed: "+d.buildErr.Error()))
		return lipgloss.JoinVertical(lipgloss.Left, rows...)
	}

	for _, panel := range d.panels {
		rows = append(rows, PanelTitle.Render(fmt.Sprintf("Spectrograph %d", panel.Spectrograph)))
		for _, img := range panel.Successes {
			rows = append(rows, PanelBody.Render(fmt.Sprintf("%-22s %dx%d  [%s %s..%s]",
				img.Arm.Name(), img.Array.Width, img.Array.Height,
				img.Meta["scale"], img.Meta["vmin"], img.Meta["vmax"])))
		}
		for _, arm := range panel.Missing {
			rows = append(rows, MissingNote.Render("missing: "+arm.Name()))
		}
		for _, e := range panel.Errors {
			rows = append(rows, ErrorNote.Render(fmt.Sprintf("%s: %s", e.Arm.Name(), e.Message)))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) renderSelectors() string {
	d := m.dash
	code, fiber := "-", "-"
	if len(d.codes) > 0 {
		code = d.codes[d.codeIdx]
	}
	if len(d.fibers) > 0 {
		fiber = strconv.Itoa(d.fibers[d.fiberIdx])
	}

	codeStyle, fiberStyle := WidgetLabel, WidgetLabel
	if m.focus == focusCode {
		codeStyle = WidgetFocused
	}
	if m.focus == focusFiber {
		fiberStyle = WidgetFocused
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		codeStyle.Render("code: "+code),
		fiberStyle.Render("fiber: "+fiber),
	)
}

func (m Model) renderStatus() string {
	if err := m.dash.discoveryErr; err != nil {
		return "  Discovery error: " + err.Error()
	}
	opts := fmt.Sprintf("sky:%t scale:%s", m.dash.skySub, m.dash.scale)
	return "  [↑↓] visits  [enter] build  [tab] focus  [←→] value  [1-4] spectrographs  [s] sky  [z] scale  [r] refresh  [esc] reset  [q] quit  ·  " + opts
}
