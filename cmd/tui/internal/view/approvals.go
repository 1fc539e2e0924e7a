package view

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/agave/factoring-ledger/internal/ledger"
)

type approvalsState int

const (
	approvalsStateLoading approvalsState = iota
	approvalsStateReviewing
	approvalsStateDone
)

const (
	decisionApprove = "approve"
	decisionReject  = "reject"
)

// ApprovalsModel walks the back-office operator through the pending
// queue one transaction at a time.
type ApprovalsModel struct {
	CommonModel
	svc *ledger.Service

	state approvalsState

	queue      []*ledger.PendingTransaction
	currentTx  *ledger.PendingTransaction
	totalCount int

	form         *huh.Form
	formDecision string
	formReason   string

	status string
}

func NewApprovalsModel(svc *ledger.Service) ApprovalsModel {
	return ApprovalsModel{
		svc:    svc,
		state:  approvalsStateLoading,
		status: "Loading pending queue...",
	}
}

func (m ApprovalsModel) Init() tea.Cmd {
	return m.loadQueueCmd()
}

func (m ApprovalsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc {
			return m, Back
		}

	case loadQueueMsg:
		if msg.err != nil {
			m.state = approvalsStateDone
			m.status = fmt.Sprintf("Error loading queue: %v", msg.err)

			return m, nil
		}

		m.queue = msg.txs
		m.totalCount = len(m.queue)

		if m.totalCount == 0 {
			m.state = approvalsStateDone
			m.status = "Nothing pending. All caught up."

			return m, nil
		}

		return m.nextTx()

	case resolveResultMsg:
		if msg.err != nil {
			// A not_found here means someone else resolved it first;
			// either way, move on.
			m.status = fmt.Sprintf("Could not resolve #%d: %v", msg.id, msg.err)
		} else {
			verb := "approved"
			if msg.decision == decisionReject {
				verb = "rejected"
			}

			m.status = fmt.Sprintf("Transaction #%d %s", msg.id, verb)
		}

		return m.nextTx()
	}

	if m.state == approvalsStateReviewing && m.form != nil {
		form, cmd := m.form.Update(msg)
		if f, ok := form.(*huh.Form); ok {
			m.form = f
		}

		if m.form.State != huh.StateCompleted {
			return m, cmd
		}

		decision := m.form.GetString("decision")
		reason := strings.TrimSpace(m.form.GetString("reason"))

		if decision == decisionReject && reason == "" {
			m.status = "A reason is required to reject"
			return m.buildForm()
		}

		return m, m.resolveCmd(decision, reason)
	}

	return m, nil
}

func (m ApprovalsModel) nextTx() (tea.Model, tea.Cmd) {
	if len(m.queue) == 0 {
		m.state = approvalsStateDone
		m.currentTx = nil
		m.form = nil

		if m.status == "" {
			m.status = "Queue drained."
		}

		return m, nil
	}

	m.currentTx = m.queue[0]
	m.queue = m.queue[1:]
	m.state = approvalsStateReviewing

	return m.buildForm()
}

func (m ApprovalsModel) buildForm() (tea.Model, tea.Cmd) {
	m.formDecision = decisionApprove
	m.formReason = ""

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("decision").
				Title("Decision").
				Options(
					huh.NewOption("Approve", decisionApprove),
					huh.NewOption("Reject", decisionReject),
				).
				Value(&m.formDecision),

			huh.NewInput().
				Key("reason").
				Title("Rejection reason (required when rejecting)").
				Value(&m.formReason),
		),
	).WithWidth(60).WithShowHelp(false)

	return m, m.form.Init()
}

func (m ApprovalsModel) View() string {
	switch m.state {
	case approvalsStateLoading:
		return lipgloss.NewStyle().Padding(2).Render(m.status)

	case approvalsStateReviewing:
		if m.currentTx == nil || m.form == nil {
			return ""
		}

		reviewed := m.totalCount - len(m.queue)
		header := fmt.Sprintf("Reviewing %d/%d", reviewed, m.totalCount)

		if m.status != "" {
			header += "  " + lipgloss.NewStyle().Faint(true).Render(m.status)
		}

		return lipgloss.NewStyle().Padding(1).Render(
			header + "\n" + m.txInfoView() + "\n" + m.form.View(),
		)

	case approvalsStateDone:
		return lipgloss.NewStyle().Padding(2).Render(m.status + "\n\n(Esc to back)")
	}

	return ""
}

func (m ApprovalsModel) txInfoView() string {
	tx := m.currentTx

	info := fmt.Sprintf(
		"#%d  |  %s  |  %s\nCompany: %s  |  Created: %s",
		tx.ID, tx.Type, FormatAmount(tx.Amount),
		tx.CompanyRFC, FormatDate(tx.CreatedAt),
	)

	if len(tx.Metadata) > 0 {
		info += "\nMetadata: " + string(tx.Metadata)
	}

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Render(info)
}

type loadQueueMsg struct {
	txs []*ledger.PendingTransaction
	err error
}

func (m ApprovalsModel) loadQueueCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		txs, err := m.svc.List(ctx, ledger.ListFilter{Status: new(ledger.StatusPending)})

		return loadQueueMsg{txs: txs, err: err}
	}
}

type resolveResultMsg struct {
	id       int64
	decision string
	err      error
}

func (m ApprovalsModel) resolveCmd(decision, reason string) tea.Cmd {
	id := m.currentTx.ID
	svc := m.svc

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		var err error
		if decision == decisionApprove {
			_, err = svc.Approve(ctx, id)
		} else {
			_, err = svc.Reject(ctx, id, reason)
		}

		return resolveResultMsg{id: id, decision: decision, err: err}
	}
}
