// Stress driver for the stub backend: registers viewer/agent pairs,
// walks each pair through a full consultation, and spams messages in
// both directions. Start small; the in-memory stub holds every room
// and transcript for the run.
package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"milestone-client/internal/api"
	"milestone-client/internal/chat"
	"milestone-client/internal/session"
	"milestone-client/internal/ws"
)

const (
	baseURL   = "http://localhost:8080"
	wsBaseURL = "ws://localhost:8080"
	pairCount = 50 // one viewer + one agent each
	msgCount  = 20 // messages per side
)

func main() {
	log.Printf("starting stress run: %d pairs, %d messages each side", pairCount, msgCount)

	var wg sync.WaitGroup
	for i := 0; i < pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			if err := runPair(pairID); err != nil {
				log.Printf("pair %d failed: %v", pairID, err)
			}
		}(i)
	}
	wg.Wait()

	log.Println("stress run complete")
}

type member struct {
	client *api.Client
	chat   *chat.Session
	mgr    *ws.Manager
}

// connect registers the account (duplicate registration is fine on
// reruns), logs in, and wires the chat session to the push channel.
func connect(ctx context.Context, email, password, role string) (*member, error) {
	client, err := api.NewClient(baseURL)
	if err != nil {
		return nil, err
	}
	client.Register(ctx, email, password, role)

	sess := session.New()
	if err := sess.Login(ctx, client, email, password); err != nil {
		return nil, fmt.Errorf("login %s: %w", email, err)
	}

	mgr := ws.NewManager(wsBaseURL, sess, client.Jar(), nil)
	return &member{client: client, chat: chat.NewSession(client, mgr, sess, nil), mgr: mgr}, nil
}

func runPair(pairID int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	viewer, err := connect(ctx, fmt.Sprintf("viewer_%d@load.test", pairID), "password123", "USER")
	if err != nil {
		return err
	}
	defer viewer.mgr.CloseAll()

	agent, err := connect(ctx, fmt.Sprintf("agent_%d@load.test", pairID), "password123", "ADMIN")
	if err != nil {
		return err
	}
	defer agent.mgr.CloseAll()

	roomID, err := viewer.chat.Request(ctx)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	if err := agent.chat.Accept(ctx, roomID); err != nil {
		return fmt.Errorf("accept room %d: %w", roomID, err)
	}

	// The viewer flips Active when the accept marker lands.
	deadline := time.Now().Add(5 * time.Second)
	for viewer.chat.Snapshot().State != chat.StateActive {
		if time.Now().After(deadline) {
			return fmt.Errorf("room %d: viewer never went active", roomID)
		}
		time.Sleep(10 * time.Millisecond)
	}

	var msgWG sync.WaitGroup
	msgWG.Add(2)
	go spam(ctx, &msgWG, viewer, "viewer", pairID)
	go spam(ctx, &msgWG, agent, "agent", pairID)
	msgWG.Wait()

	if err := agent.chat.End(ctx, roomID); err != nil {
		return fmt.Errorf("end room %d: %w", roomID, err)
	}
	return nil
}

func spam(ctx context.Context, wg *sync.WaitGroup, m *member, side string, pairID int) {
	defer wg.Done()
	for i := 0; i < msgCount; i++ {
		if err := m.chat.Send(ctx, fmt.Sprintf("load msg %d from %s %d", i, side, pairID)); err != nil {
			log.Printf("send failed [%s %d]: %v", side, pairID, err)
			return
		}
		// Pace the sends a little so localhost isn't the bottleneck.
		time.Sleep(10 * time.Millisecond)
	}
}
