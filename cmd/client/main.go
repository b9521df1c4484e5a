// client is a terminal front end for the real-time subsystem: it logs
// in, opens the channels applicable to the viewer's role, prints
// routed notifications, and drives the support-chat lifecycle from
// stdin.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"

	"milestone-client/internal/api"
	"milestone-client/internal/chat"
	"milestone-client/internal/notify"
	"milestone-client/internal/route"
	"milestone-client/internal/session"
	"milestone-client/internal/ws"
)

type config struct {
	APIBase  string `env:"API_BASE" envDefault:"http://localhost:8080"`
	WSBase   string `env:"WS_BASE" envDefault:"ws://localhost:8080"`
	Email    string `env:"EMAIL"`
	Password string `env:"PASSWORD"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Email == "" || cfg.Password == "" {
		log.Fatal("EMAIL and PASSWORD must be set")
	}

	logger := slog.Default()
	ctx := context.Background()

	client, err := api.NewClient(cfg.APIBase)
	if err != nil {
		log.Fatalf("api client: %v", err)
	}

	sess := session.New()
	if err := sess.Login(ctx, client, cfg.Email, cfg.Password); err != nil {
		log.Fatalf("login: %v", err)
	}
	st := sess.State()
	fmt.Printf("logged in as %s (admin=%v)\n", st.Email, st.Admin)

	mgr := ws.NewManager(cfg.WSBase, sess, client.Jar(), logger)
	center := notify.NewCenter()
	chatSess := chat.NewSession(client, mgr, sess, logger)
	chatSess.SetOnChange(func(snap chat.Snapshot) {
		fmt.Printf("[chat] state=%s room=%d messages=%d rooms=%d\n",
			snap.State, snap.RoomID, len(snap.Transcript), len(snap.Rooms))
	})

	disp := route.NewDispatcher(center, chatSess, logger)
	for _, ch := range []ws.Channel{ws.ChannelOrderStatus, ws.ChannelCommentNotice, ws.ChannelOffline} {
		if err := mgr.Open(ch, disp.Handler(ch)); err != nil {
			logger.Error("channel open failed", "channel", ch, "err", err)
		}
	}
	if st.Admin {
		if err := mgr.Open(ws.ChannelRoleNotifications, disp.Handler(ws.ChannelRoleNotifications)); err != nil {
			logger.Error("channel open failed", "channel", ws.ChannelRoleNotifications, "err", err)
		}
	}

	chatSess.RefreshRooms()
	repl(ctx, client, sess, chatSess, center)
}

func repl(ctx context.Context, client *api.Client, sess *session.Session, chatSess *chat.Session, center *notify.Center) {
	fmt.Println("commands: rooms | request | cancel | accept <id> | select <id> | say <text> | end [id] | delete <id> | notices | dismiss <id> | clear | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "rooms":
			chatSess.RefreshRooms()
			for _, room := range chatSess.Snapshot().Rooms {
				fmt.Printf("  room %d  %s  %s\n", room.RoomID, room.UserEmail, room.CreatedAt)
			}
		case "request":
			var roomID int64
			if roomID, err = chatSess.Request(ctx); err == nil {
				fmt.Printf("requested room %d, waiting for an agent\n", roomID)
			}
		case "cancel":
			err = chatSess.CancelRequest(ctx)
		case "accept":
			err = withID(fields, func(id int64) error { return chatSess.Accept(ctx, id) })
		case "select":
			err = withID(fields, func(id int64) error { return chatSess.SelectRoom(ctx, id) })
		case "say":
			err = chatSess.Send(ctx, strings.Join(fields[1:], " "))
		case "end":
			id := chatSess.Snapshot().RoomID
			if len(fields) > 1 {
				id, err = strconv.ParseInt(fields[1], 10, 64)
			}
			if err == nil {
				err = chatSess.End(ctx, id)
			}
		case "delete":
			err = withID(fields, func(id int64) error { return chatSess.Delete(ctx, id) })
		case "notices":
			for _, n := range center.Open() {
				fmt.Printf("  %s  %s\n", n.ID, n.Text)
			}
		case "dismiss":
			if len(fields) < 2 || !center.Dismiss(fields[1]) {
				fmt.Println("no such notification")
			}
		case "clear":
			center.Clear()
		case "quit":
			if err := sess.Logout(ctx, client); err != nil {
				fmt.Printf("logout failed: %v\n", err)
			}
			return
		default:
			fmt.Println("unknown command")
		}

		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func withID(fields []string, fn func(int64) error) error {
	if len(fields) < 2 {
		return fmt.Errorf("room id required")
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return fmt.Errorf("bad room id %q", fields[1])
	}
	return fn(id)
}
