// Package cli implements the interactive command-line interface for GMBridge.
// It offers link status, operator management, and direct GM command dispatch
// without going through the HTTP API.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/gmbridge-project/gmbridge/internal/bridge"
	"github.com/gmbridge-project/gmbridge/internal/config"
	"github.com/gmbridge-project/gmbridge/internal/db"
	"github.com/gmbridge-project/gmbridge/internal/events"
	"github.com/gmbridge-project/gmbridge/internal/gm"
)

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	bridge   *bridge.Bridge
	store    *db.UserStore
}

// NewCLI creates a new CLI handler.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, br *bridge.Bridge, store *db.UserStore) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		bridge:   br,
		store:    store,
	}
}

// Start begins the interactive CLI loop.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nGMBridge CLI ready. Type 'help' for available commands.")
	fmt.Println("─────────────────────────────────────────────────────")

	scanner := bufio.NewScanner(os.Stdin)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Print("gmbridge> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				log.Warn().Err(err).Msg("CLI input error")
			}
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if err := c.execute(ctx, cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "users":
		return c.printUsers()
	case "operations", "ops":
		return c.printOperations(args)
	case "send":
		return c.cmdSend(ctx, args)
	case "login", "relogin":
		return c.cmdRelogin(ctx)
	case "setconfig":
		return c.cmdSetConfig(args)
	case "quit", "exit", "q":
		fmt.Println("Shutting down GMBridge...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println("\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                     GMBridge CLI Commands                    ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  status                 Show game link and API status        ║")
	fmt.Println("║  users                  List operator accounts               ║")
	fmt.Println("║  operations <module>    List GM operations in a module       ║")
	fmt.Println("║  send <mod> <fn> [k=v]  Send a GM command directly           ║")
	fmt.Println("║  relogin                Re-authenticate the game session     ║")
	fmt.Println("║  setconfig <k> <v>      Update a game config value           ║")
	fmt.Println("║  quit                   Shutdown GMBridge                    ║")
	fmt.Println("║  help                   Show this help message               ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// printStatus displays the bridge status in a formatted table.
func (c *CLI) printStatus() {
	game := c.cfg.GetGameData()
	app := c.cfg.GetApplicationData()

	link := "DISCONNECTED"
	if c.bridge.Connected() {
		link = "CONNECTED"
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Field", "Value"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	tw.Append([]string{"Game Link", link})
	tw.Append([]string{"Game Server", fmt.Sprintf("%s:%d", game.Host, game.Port)})
	tw.Append([]string{"GM Account", game.Account})
	tw.Append([]string{"API Port", fmt.Sprintf("%d", game.APIPort)})
	tw.Append([]string{"MQTT", fmt.Sprintf("%v", app.MQTT.Enabled)})
	tw.Render()
	fmt.Println()
}

// printUsers lists operator accounts in a formatted table.
func (c *CLI) printUsers() error {
	users, err := c.store.ListUsers()
	if err != nil {
		return err
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"ID", "Username", "Role", "Created"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, u := range users {
		tw.Append([]string{
			fmt.Sprintf("%d", u.ID),
			u.Username,
			u.Role,
			u.CreatedAt.Format("2006-01-02 15:04"),
		})
	}

	tw.Render()
	fmt.Println()
	return nil
}

// printOperations lists the GM catalog of one module.
func (c *CLI) printOperations(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: operations <module> (one of: %s)", strings.Join(gm.Modules(), ", "))
	}

	ops := gm.Operations(args[0])
	if len(ops) == 0 {
		return fmt.Errorf("unknown module: %s", args[0])
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Function", "Permission", "Required Args", "Optional Args"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, op := range ops {
		tw.Append([]string{
			op.Name,
			op.Permission,
			strings.Join(op.Required, ", "),
			strings.Join(op.Optional, ", "),
		})
	}

	tw.Render()
	fmt.Println()
	return nil
}

// cmdSend dispatches a GM command from the terminal. Arguments after the
// function name are key=value pairs.
func (c *CLI) cmdSend(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: send <module> <function> [key=value ...]")
	}

	module, function := args[0], args[1]
	cmdArgs := make(map[string]interface{})
	for _, pair := range args[2:] {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return fmt.Errorf("argument %q is not key=value", pair)
		}
		cmdArgs[key] = value
	}

	op, err := gm.Lookup(module, function)
	if err != nil {
		return err
	}
	if err := gm.ValidateArgs(op, cmdArgs); err != nil {
		return err
	}

	result, err := c.bridge.Invoke(ctx, op.SeqNo, op.Name, cmdArgs)
	if err != nil {
		return err
	}

	fmt.Printf("Status: %s\n", result.Status)
	for _, frame := range result.Frames {
		fmt.Printf("  [seq %d] %s\n", frame.SeqNo, frame.Content)
	}
	return nil
}

// cmdRelogin re-authenticates the game session.
func (c *CLI) cmdRelogin(ctx context.Context) error {
	game := c.cfg.GetGameData()
	if err := c.bridge.Login(ctx, game.Password, game.LoginTimeout()); err != nil {
		return err
	}
	fmt.Println("Game session authenticated")
	return nil
}

// cmdSetConfig updates one game data field and persists the config.
func (c *CLI) cmdSetConfig(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: setconfig <key> <value>")
	}

	key := args[0]
	value := strings.Join(args[1:], " ")

	if err := c.cfg.UpdateGameField(key, value); err != nil {
		return err
	}

	if err := c.cfg.Save(); err != nil {
		return err
	}

	fmt.Printf("Config updated: %s = %s\n", key, value)
	return nil
}
