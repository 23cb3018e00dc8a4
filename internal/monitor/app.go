package monitor

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// App is the hivetop dashboard.
type App struct {
	app      *tview.Application
	vm       *ViewModel
	bindings *Bindings
	stats    *StatsView
	online   *OnlineTable
	bar      *StatusBar
	socket   string
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewApp creates the dashboard polling src every interval.
func NewApp(src Source, socket string, interval time.Duration) *App {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		app:      tview.NewApplication(),
		vm:       NewViewModel(src),
		bindings: &Bindings{},
		stats:    NewStatsView(),
		online:   NewOnlineTable(),
		bar:      NewStatusBar(),
		socket:   socket,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
	a.setupBindings()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.bindings.Add(&Action{Key: tcell.KeyRune, Rune: 'q', Description: "q:quit", Handler: a.Stop})
	a.bindings.Add(&Action{Key: tcell.KeyRune, Rune: 'r', Description: "r:refresh", Handler: func() { go a.refresh() }})
	a.bindings.Add(&Action{Key: tcell.KeyRune, Rune: 'k', Description: "k:kick", Handler: a.kickSelected})
}

func (a *App) setupLayout() {
	body := tview.NewFlex().
		AddItem(a.stats, 40, 0, false).
		AddItem(a.online, 0, 1, true)
	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(a.bar, 1, 0, false)
	a.app.SetRoot(root, true).SetFocus(a.online)

	a.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if a.bindings.Handle(ev) {
			return nil
		}
		return ev
	})
}

func (a *App) kickSelected() {
	userID := a.online.Selected()
	if userID == "" {
		return
	}
	go func() {
		_ = a.vm.Kick(a.ctx, userID)
		a.refresh()
	}()
}

func (a *App) refresh() {
	ctx, cancel := context.WithTimeout(a.ctx, a.interval)
	_ = a.vm.Refresh(ctx)
	cancel()
	a.app.QueueUpdateDraw(a.draw)
}

func (a *App) draw() {
	a.stats.Update(a.vm.Status())
	a.online.Update(a.vm.Online())
	a.bar.Render(a.socket, a.vm.Refreshed(), a.vm.Err(), a.bindings.Hints(), a.vm.Flash.Get())
}

// Run starts polling and blocks until the user quits.
func (a *App) Run() error {
	go func() {
		a.refresh()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.refresh()
			case <-a.ctx.Done():
				return
			}
		}
	}()
	return a.app.Run()
}

// Stop shuts the dashboard down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
