package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Instaken/realtimechat-app/pkg/realtime"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/realtime/ws", "websocket endpoint")
		apiURL   = flag.String("api", "http://localhost:8080", "REST endpoint")
		token    = flag.String("token", "", "bearer token")
		room     = flag.String("room", "", "room id to join")
		userID   = flag.String("user", "", "user id")
		username = flag.String("name", "", "display name")
		verbose  = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if *room == "" || *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: chat -room <id> -user <id> [-name <username>] [-token <jwt>]")
		os.Exit(2)
	}

	logger := zerolog.Nop()
	if *verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	api := realtime.NewAPIClient(*apiURL, *token, logger)
	directory := realtime.NewCachedDirectory(api)

	client, err := realtime.NewClient(realtime.Options{
		URL:       *url,
		Token:     *token,
		Identity:  realtime.User{UserID: *userID, Username: *username},
		Directory: directory,
		Logger:    logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "client setup failed: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := client.Connect(ctx); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "connect failed: %v\n", err)
		os.Exit(1)
	}
	cancel()

	if err := directory.Refresh(context.Background(), *room); err != nil {
		fmt.Fprintf(os.Stderr, "warning: participant directory unavailable: %v\n", err)
	}

	session, err := client.Join(context.Background(), *room)
	if err != nil {
		fmt.Fprintf(os.Stderr, "join failed: %v\n", err)
		os.Exit(1)
	}

	session.OnMessage(func(entry realtime.StreamEntry) {
		fmt.Printf("[%s] %s: %s\n", entry.CreatedAt.Local().Format("15:04:05"), entry.SenderID, entry.Content)
	})
	session.OnRosterChange(func(users []realtime.User) {
		names := make([]string, 0, len(users))
		for _, user := range users {
			names = append(names, user.Username)
		}
		fmt.Printf("* online: %s\n", strings.Join(names, ", "))
	})
	session.OnTypingChange(func(users []string) {
		if len(users) > 0 {
			fmt.Printf("* typing: %s\n", strings.Join(users, ", "))
		}
	})

	for _, entry := range session.Messages() {
		fmt.Printf("[%s] %s: %s\n", entry.CreatedAt.Local().Format("15:04:05"), entry.SenderID, entry.Content)
	}

	fmt.Println("connected. type a message and press enter; /quit to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			session.Leave()
			return
		case line == "/who":
			for _, user := range session.Roster() {
				fmt.Printf("  %s (%s)\n", user.Username, user.UserID)
			}
		default:
			session.Typing()
			if _, err := session.Send(context.Background(), line); err != nil {
				fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			}
		}
	}
}
