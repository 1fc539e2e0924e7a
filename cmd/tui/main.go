package main

import (
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/agave/factoring-ledger/cmd/tui/internal/view"
	"github.com/agave/factoring-ledger/internal/config"
	"github.com/agave/factoring-ledger/internal/database"
	"github.com/agave/factoring-ledger/internal/event"
	"github.com/agave/factoring-ledger/internal/ledger"
	"github.com/agave/factoring-ledger/internal/ledger/store"
)

type model struct {
	ledgerService *ledger.Service

	currentView View

	approvalsView view.ApprovalsModel
	historyView   view.HistoryModel
	balanceView   view.BalanceModel
}

type View int

const (
	ViewMenu      View = 0
	ViewApprovals View = 1
	ViewHistory   View = 2
	ViewBalance   View = 3
)

func initialModel() model {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.ConnectionString())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	rdb := database.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	ledgerSvc := ledger.NewService(
		store.NewWithLockTimeout(db, cfg.Ledger.LockTimeout),
		event.NewPublisher(rdb, cfg.Redis.EventQueue),
	)

	return model{
		ledgerService: ledgerSvc,
		currentView:   ViewMenu,
		approvalsView: view.NewApprovalsModel(ledgerSvc),
		historyView:   view.NewHistoryModel(ledgerSvc),
		balanceView:   view.NewBalanceModel(ledgerSvc),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.currentView == ViewMenu {
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "1":
				m.currentView = ViewApprovals
				m.approvalsView = view.NewApprovalsModel(m.ledgerService)

				return m, m.approvalsView.Init()
			case "2":
				m.currentView = ViewHistory
				m.historyView = view.NewHistoryModel(m.ledgerService)

				return m, m.historyView.Init()
			case "3":
				m.currentView = ViewBalance
				m.balanceView = view.NewBalanceModel(m.ledgerService)

				return m, m.balanceView.Init()
			}
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	switch m.currentView {
	case ViewApprovals:
		var newModel tea.Model
		newModel, cmd = m.approvalsView.Update(msg)
		m.approvalsView = newModel.(view.ApprovalsModel)
	case ViewHistory:
		var newModel tea.Model
		newModel, cmd = m.historyView.Update(msg)
		m.historyView = newModel.(view.HistoryModel)
	case ViewBalance:
		var newModel tea.Model
		newModel, cmd = m.balanceView.Update(msg)
		m.balanceView = newModel.(view.BalanceModel)
	}

	return m, cmd
}

func (m model) View() string {
	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			"Factoring Ledger\n\n" +
				"1. Review Pending Transactions\n" +
				"2. Transaction History\n" +
				"3. Balance Lookup\n\n" +
				"q. Quit",
		)
	case ViewApprovals:
		return m.approvalsView.View()
	case ViewHistory:
		return m.historyView.View()
	case ViewBalance:
		return m.balanceView.View()
	}

	return "Unknown View"
}

func main() {
	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		slog.Error("failed to run TUI", "error", err)
		os.Exit(1)
	}
}
