// Package monitor is a terminal view of a running daemon: the instance table
// and a live log of room events, fed by the WebSocket room router.
package monitor

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// App is the monitor application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	table     *tview.Table
	logView   *tview.TextView
	statusBar *tview.TextView
	theme     *Theme
	keys      Keymap

	conn  *Conn
	model *Model
	url   string
	flash string
	done  chan struct{}
}

// NewApp creates the monitor bound to an open connection.
func NewApp(conn *Conn, url string) *App {
	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		table:     tview.NewTable(),
		logView:   tview.NewTextView(),
		statusBar: tview.NewTextView(),
		theme:     DefaultTheme(),
		conn:      conn,
		model:     NewModel(),
		url:       url,
		done:      make(chan struct{}),
	}
	a.setupLayout()
	a.setupKeys()
	return a
}

func (a *App) setupLayout() {
	a.table.SetBorders(false).
		SetSelectable(true, false).
		SetFixed(1, 0).
		SetSelectedStyle(tcell.StyleDefault.Foreground(a.theme.TableCursorFg).Background(a.theme.TableCursorBg))
	a.table.SetBorder(true).
		SetBorderColor(a.theme.BorderColor).
		SetTitle(" Instances ").
		SetTitleColor(a.theme.TitleColor)

	a.logView.SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() { a.logView.ScrollToEnd() })
	a.logView.SetBorder(true).
		SetBorderColor(a.theme.BorderColor).
		SetTitle(" Events ").
		SetTitleColor(a.theme.TitleColor)

	a.statusBar.SetDynamicColors(true)
	a.statusBar.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.table, 0, 1, true).
		AddItem(a.logView, 0, 1, false).
		AddItem(a.statusBar, 1, 0, false)
	a.pages.AddPage("main", root, true, true)
	a.app.SetRoot(a.pages, true)
}

func (a *App) setupKeys() {
	a.keys.Add(&Action{Key: tcell.KeyTab, Handler: func() {
		if a.table.HasFocus() {
			a.app.SetFocus(a.logView)
		} else {
			a.app.SetFocus(a.table)
		}
	}})
	a.keys.Add(&Action{Key: tcell.KeyRune, Rune: 'q', Hint: "quit", Handler: a.app.Stop})
	a.keys.Add(&Action{Key: tcell.KeyRune, Rune: 'r', Hint: "refresh", Handler: func() {
		a.send("list_instances", nil)
		a.setFlash("refreshing")
	}})
	a.keys.Add(&Action{Key: tcell.KeyRune, Rune: 'd', Hint: "delete", Handler: func() {
		if id := a.selected(); id != "" {
			a.confirmDelete(id)
		}
	}})

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if name, _ := a.pages.GetFrontPage(); name != "main" {
			return event
		}
		if a.keys.Handle(event) {
			return nil
		}
		return event
	})
}

// Run joins the monitor room, starts reading frames and blocks until quit.
func (a *App) Run() error {
	a.send("join_internal_monitor_room", nil)
	a.send("list_instances", nil)

	go a.readLoop()
	go a.refreshLoop()
	a.render()

	err := a.app.Run()
	close(a.done)
	return err
}

func (a *App) readLoop() {
	for {
		f, err := a.conn.Read()
		if err != nil {
			select {
			case <-a.done:
			default:
				a.app.QueueUpdateDraw(func() { a.setFlash("connection lost: " + err.Error()) })
			}
			return
		}
		for _, id := range a.model.Apply(f) {
			if err := a.conn.JoinInstance(id); err != nil {
				return
			}
		}
	}
}

func (a *App) refreshLoop() {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-a.done:
			return
		case <-a.model.RefreshCh():
		case <-tick.C:
		}
		a.app.QueueUpdateDraw(a.render)
	}
}

func (a *App) render() {
	a.renderTable()
	a.renderLog()
	a.renderStatus()
}

func (a *App) renderTable() {
	row, _ := a.table.GetSelection()
	a.table.Clear()
	for col, h := range []string{"ID", "STATUS", "USER", "CONTACTS", "CHATS", "MESSAGES", "LIVE"} {
		a.table.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(a.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false).
			SetExpansion(1))
	}
	for i, inst := range a.model.Instances() {
		r := i + 1
		user := inst.UserName
		if user == "" {
			user = inst.UserID
		}
		live := ""
		if inst.Active {
			live = "*"
		}
		a.table.SetCell(r, 0, tview.NewTableCell(inst.ID).SetReference(inst.ID))
		a.table.SetCell(r, 1, tview.NewTableCell(inst.Status).SetTextColor(StatusColor(inst.Status)))
		a.table.SetCell(r, 2, tview.NewTableCell(user))
		a.table.SetCell(r, 3, tview.NewTableCell(strconv.FormatInt(inst.ContactsCount, 10)))
		a.table.SetCell(r, 4, tview.NewTableCell(strconv.FormatInt(inst.ChatsCount, 10)))
		a.table.SetCell(r, 5, tview.NewTableCell(strconv.FormatInt(inst.MessagesCount, 10)))
		a.table.SetCell(r, 6, tview.NewTableCell(live))
	}
	if row < 1 {
		row = 1
	}
	if row >= a.table.GetRowCount() {
		row = a.table.GetRowCount() - 1
	}
	a.table.Select(row, 0)
}

func (a *App) renderLog() {
	a.logView.Clear()
	for _, l := range a.model.Log() {
		_, _ = fmt.Fprintf(a.logView, "%s [%s]%-22s[-] [%s]%s[-] %s\n",
			l.Time.Format("15:04:05"),
			a.theme.LogRoomColor, tview.Escape(l.Room),
			a.theme.LogEventColor, l.Event,
			tview.Escape(l.Text))
	}
}

func (a *App) renderStatus() {
	a.statusBar.Clear()
	line := fmt.Sprintf(" [::b]%s[-:-:-] | %d instance(s) | %d client(s) | %s | %s",
		a.url, len(a.model.Instances()), a.model.Clients(), time.Now().Format("15:04"), a.keys.Hints())
	if a.flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", tview.Escape(a.flash))
	}
	_, _ = fmt.Fprint(a.statusBar, line)
}

func (a *App) selected() string {
	row, _ := a.table.GetSelection()
	if row < 1 {
		return ""
	}
	id, _ := a.table.GetCell(row, 0).GetReference().(string)
	return id
}

func (a *App) confirmDelete(id string) {
	modal := tview.NewModal().
		SetText(fmt.Sprintf("Delete instance %q permanently?\nCredentials, stored data and media are removed.", id)).
		AddButtons([]string{"Delete", "Cancel"}).
		SetDoneFunc(func(_ int, label string) {
			a.pages.RemovePage("confirm")
			if label == "Delete" {
				a.send("delete_instance", map[string]string{"instanceId": id})
				a.setFlash("deleting " + id)
			}
		})
	a.pages.AddPage("confirm", modal, false, true)
}

func (a *App) send(event string, data any) {
	if err := a.conn.Send(event, data); err != nil {
		a.setFlash("send failed: " + err.Error())
	}
}

func (a *App) setFlash(msg string) {
	a.flash = msg
	a.renderStatus()
}
