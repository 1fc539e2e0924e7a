package view

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/agave/factoring-ledger/internal/ledger"
)

// BalanceModel looks up a company's available balance by RFC.
type BalanceModel struct {
	CommonModel
	svc *ledger.Service

	form    *huh.Form
	formRFC string

	result  string
	loading bool
}

func NewBalanceModel(svc *ledger.Service) BalanceModel {
	m := BalanceModel{svc: svc}
	m.form = m.buildForm()

	return m
}

func (m BalanceModel) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("rfc").
				Title("Company RFC").
				Placeholder("FAC010203AB9").
				Value(&m.formRFC).
				Validate(func(s string) error {
					if l := len(strings.TrimSpace(s)); l < 12 || l > 13 {
						return fmt.Errorf("RFC must be 12 or 13 characters")
					}

					return nil
				}),
		),
	).WithWidth(40).WithShowHelp(false)
}

func (m BalanceModel) Init() tea.Cmd {
	return m.form.Init()
}

func (m BalanceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc {
			return m, Back
		}

	case balanceMsg:
		m.loading = false
		if msg.err != nil {
			m.result = fmt.Sprintf("Error: %v", msg.err)
		} else {
			m.result = fmt.Sprintf("Available balance for %s: %s", msg.rfc, FormatAmount(msg.available))
		}

		m.formRFC = ""
		m.form = m.buildForm()

		return m, m.form.Init()
	}

	if m.loading {
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	m.loading = true

	return m, m.lookupCmd(strings.ToUpper(strings.TrimSpace(m.form.GetString("rfc"))))
}

func (m BalanceModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Looking up balance...")
	}

	content := "Balance Lookup\n\n" + m.form.View()
	if m.result != "" {
		content += "\n" + m.result
	}

	content += "\n\n(Esc to back)"

	return lipgloss.NewStyle().Padding(1).Render(content)
}

type balanceMsg struct {
	rfc       string
	available int64
	err       error
}

func (m BalanceModel) lookupCmd(rfc string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		available, err := m.svc.AvailableBalance(ctx, rfc)

		return balanceMsg{rfc: rfc, available: available, err: err}
	}
}
