package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/gridsync/gridsync/internal/core/circuit"
	"github.com/gridsync/gridsync/internal/core/client"
	"github.com/gridsync/gridsync/internal/core/observability/log"
	"github.com/gridsync/gridsync/internal/core/packets"
	"github.com/gridsync/gridsync/internal/core/wire"
)

func main() {
	var (
		addr        = flag.String("addr", "", "simulator address (host:port)")
		configPath  = flag.String("config", "", "path to YAML settings")
		agentID     = flag.String("agent", "", "agent uuid from login")
		sessionID   = flag.String("session", "", "session uuid from login")
		circuitCode = flag.Uint("circuit-code", 0, "circuit code from login")
	)
	flag.Parse()

	if *addr == "" {
		fmt.Fprintln(os.Stderr, "usage: gridsync -addr host:port -agent uuid -session uuid -circuit-code n")
		os.Exit(2)
	}

	settings := client.DefaultSettings()
	if *configPath != "" {
		var err error
		if settings, err = client.LoadSettingsFile(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, "loading settings:", err)
			os.Exit(1)
		}
	}

	creds, err := parseCredentials(*agentID, *sessionID, uint32(*circuitCode))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := log.New(log.ParseLevel(settings.LogLevel))
	defer func() { _ = logger.Sync() }()

	m := client.NewManager(settings, creds, logger)
	defer func() { _ = m.Close() }()

	m.Subscribe(wire.Low, packets.LowChatFromSimulator, func(_ *circuit.Circuit, p packets.Packet) {
		chat := p.(*packets.ChatFromSimulator)
		fmt.Printf("[%s] %s\n", chat.FromName, chat.Message)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err = m.Connect(ctx, *addr); err != nil {
		fmt.Fprintln(os.Stderr, "connecting:", err)
		os.Exit(1)
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	<-stopCh

	if err = m.Disconnect(*addr); err != nil {
		fmt.Fprintln(os.Stderr, "disconnecting:", err)
	}
}

func parseCredentials(agent, session string, code uint32) (circuit.Credentials, error) {
	creds := circuit.Credentials{CircuitCode: code}
	var err error
	if creds.AgentID, err = uuid.Parse(agent); err != nil {
		return circuit.Credentials{}, fmt.Errorf("parsing agent uuid: %w", err)
	}
	if creds.SessionID, err = uuid.Parse(session); err != nil {
		return circuit.Credentials{}, fmt.Errorf("parsing session uuid: %w", err)
	}
	return creds, nil
}
