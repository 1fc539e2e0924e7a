package view

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/agave/factoring-ledger/internal/ledger"
)

// txItem wraps a ledger transaction to implement list.Item.
type txItem struct {
	tx *ledger.PendingTransaction
}

func (i txItem) Title() string {
	status := lipgloss.NewStyle().Faint(true).Render(fmt.Sprintf("[%s]", i.tx.Status))

	return fmt.Sprintf("#%d  %s  %s  %s  %s",
		i.tx.ID, FormatDate(i.tx.CreatedAt), i.tx.Type, FormatAmount(i.tx.Amount), status)
}

func (i txItem) Description() string {
	desc := i.tx.CompanyRFC
	if i.tx.Reason != "" {
		desc += "  |  " + i.tx.Reason
	}

	return desc
}

func (i txItem) FilterValue() string {
	return i.tx.CompanyRFC
}

// HistoryModel lists every ledger transaction, filterable by company.
type HistoryModel struct {
	CommonModel
	svc *ledger.Service

	list    list.Model
	txs     []*ledger.PendingTransaction
	loading bool
	status  string
}

func NewHistoryModel(svc *ledger.Service) HistoryModel {
	l := list.New([]list.Item{}, txItemDelegate{}, 0, 0)
	l.Title = "Ledger Transactions"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(true)

	return HistoryModel{
		svc:     svc,
		list:    l,
		loading: true,
	}
}

func (m HistoryModel) Init() tea.Cmd {
	return m.loadTxsCmd()
}

func (m HistoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadTxsMsg:
		m.loading = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			return m, nil
		}

		m.txs = msg.txs
		m.refreshListItems()

		if len(msg.txs) == 0 {
			m.status = "No transactions found."
		}

		return m, nil

	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc && m.list.FilterState() != list.Filtering {
			return m, Back
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	return m, cmd
}

func (m HistoryModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading transactions...")
	}

	statusLine := ""
	if m.status != "" {
		statusLine = lipgloss.NewStyle().Faint(true).Render(m.status) + "\n"
	}

	return lipgloss.NewStyle().Padding(1).Render(statusLine + m.list.View())
}

func (m *HistoryModel) refreshListItems() {
	items := make([]list.Item, len(m.txs))
	for i, tx := range m.txs {
		items[i] = txItem{tx: tx}
	}

	m.list.SetItems(items)
}

type loadTxsMsg struct {
	txs []*ledger.PendingTransaction
	err error
}

func (m HistoryModel) loadTxsCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		txs, err := m.svc.List(ctx, ledger.ListFilter{})

		return loadTxsMsg{txs: txs, err: err}
	}
}

// txItemDelegate renders items in the list.
type txItemDelegate struct{}

func (d txItemDelegate) Height() int                             { return 2 }
func (d txItemDelegate) Spacing() int                            { return 0 }
func (d txItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d txItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	i, ok := item.(txItem)
	if !ok {
		return
	}

	title := i.Title()
	if index == m.Index() {
		title = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true).Render("> " + title)
	}

	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintf(w, "    %s\n", lipgloss.NewStyle().Faint(true).Render(i.Description()))
}
