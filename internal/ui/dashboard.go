package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/ernestchu/christmas-tree/internal/protocol"
	"github.com/ernestchu/christmas-tree/internal/reconciler"
)

// MaxGaugeSpeed is the rotation speed drawn as a full gauge.
const MaxGaugeSpeed = 2.0

// SpeedStep is how much one key press changes the rotation speed.
const SpeedStep = 0.1

// Controls is the part of the reconciler the dashboard drives.
type Controls interface {
	IsController() bool
	SelfID() string
	SessionID() string
	Controller() string
	Users() []protocol.User
	UserName(id string) string
	State() reconciler.State
	Requests() []reconciler.Request
	PendingOffer() (reconciler.Offer, bool)
	Status() <-chan string

	SetMode(protocol.Mode) error
	SetRotationSpeed(float64) error
	RequestControl() error
	OfferControl(targetID string) error
	AcceptControl() error
	DeclineControl() error
}

var modeKeys = map[string]protocol.Mode{
	"1": protocol.ModeChaos,
	"2": protocol.ModeFormed,
	"3": protocol.ModeCarousel,
	"4": protocol.ModePhoto,
}

type statusMsg string

type refreshMsg time.Time

// Dashboard is a live terminal view of one session.
type Dashboard struct {
	ctl     Controls
	spinner spinner.Model
	gauge   progress.Model
	status  []string
	err     error
	width   int
}

func NewDashboard(ctl Controls) *Dashboard {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle
	return &Dashboard{
		ctl:     ctl,
		spinner: s,
		gauge: progress.New(
			progress.WithGradient(GaugeStart, GaugeEnd),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
	}
}

// RunDashboard blocks until the user quits.
func RunDashboard(ctl Controls) error {
	_, err := tea.NewProgram(NewDashboard(ctl)).Run()
	return err
}

func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(d.spinner.Tick, d.listenStatus(), refresh())
}

func (d *Dashboard) listenStatus() tea.Cmd {
	ch := d.ctl.Status()
	return func() tea.Msg {
		return statusMsg(<-ch)
	}
}

func refresh() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return d, tea.Quit
		}
		d.err = d.handleKey(msg.String())
		return d, nil

	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.gauge.Width = max(10, min(30, msg.Width-40))
		return d, nil

	case statusMsg:
		d.status = append(d.status, string(msg))
		if len(d.status) > 5 {
			d.status = d.status[len(d.status)-5:]
		}
		return d, d.listenStatus()

	case refreshMsg:
		return d, refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		d.spinner, cmd = d.spinner.Update(msg)
		return d, cmd
	}
	return d, nil
}

func (d *Dashboard) handleKey(key string) error {
	if mode, ok := modeKeys[key]; ok {
		return d.ctl.SetMode(mode)
	}
	switch key {
	case "+", "=", "right":
		return d.ctl.SetRotationSpeed(d.ctl.State().RotationSpeed + SpeedStep)
	case "-", "left":
		return d.ctl.SetRotationSpeed(d.ctl.State().RotationSpeed - SpeedStep)
	case "0":
		return d.ctl.SetRotationSpeed(0)
	case "r":
		return d.ctl.RequestControl()
	case "a":
		return d.ctl.AcceptControl()
	case "d":
		return d.ctl.DeclineControl()
	case "o":
		// hand control to the oldest requester
		reqs := d.ctl.Requests()
		if len(reqs) == 0 {
			return fmt.Errorf("no pending requests")
		}
		return d.ctl.OfferControl(reqs[0].ID)
	}
	return nil
}

func (d *Dashboard) View() string {
	var b strings.Builder

	title := fmt.Sprintf("%s %s", IconTree, d.ctl.SessionID())
	b.WriteString(HeaderStyle.Render(title) + "\n")

	role := MutedStyle.Render("watching")
	if d.ctl.IsController() {
		role = ControllerStyle.Render(IconController + " in control")
	}
	controller := "nobody"
	if id := d.ctl.Controller(); id != "" {
		controller = d.ctl.UserName(id)
	}
	b.WriteString(fmt.Sprintf("%s %s  controller: %s\n\n", d.spinner.View(), role, BoldStyle.Render(controller)))

	st := d.ctl.State()
	b.WriteString(SceneView(st.Mode, st.RotationSpeed, len(st.Photos)) + "\n")
	b.WriteString(d.gauge.ViewAs(math.Min(math.Abs(st.RotationSpeed)/MaxGaugeSpeed, 1)) + "\n\n")

	b.WriteString(RosterView(d.ctl.Users(), d.ctl.Controller(), d.ctl.SelfID()) + "\n")

	if reqs := d.ctl.Requests(); len(reqs) > 0 {
		names := make([]string, len(reqs))
		for i, r := range reqs {
			names[i] = r.Name
		}
		b.WriteString(WarningStyle.Render("requests: "+strings.Join(names, ", ")) + "\n")
	}
	if offer, ok := d.ctl.PendingOffer(); ok {
		b.WriteString(StatusStyle.Render(fmt.Sprintf("%s offers you control (a/d)", offer.FromName)) + "\n")
	}

	for _, s := range d.status {
		b.WriteString(MutedStyle.Render("· "+s) + "\n")
	}
	if d.err != nil {
		b.WriteString(ErrorStyle.Render(d.err.Error()) + "\n")
	}

	help := "1-4 mode · +/- speed · 0 stop · r request · o offer · a accept · d decline · q quit"
	b.WriteString(FooterStyle.Render(help))
	return b.String()
}
