package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

func (a *App) prompt() string {
	status := string(a.mode)
	if a.userName != "" {
		status = a.userName + " " + status
	}
	if status != "" {
		return fmt.Sprintf("notesync (%s)> ", status)
	}
	return "notesync> "
}

// Root runs the command REPL (spec §4/§6 surfaced as a terminal client).
// Grounded on the teacher's Root loop: a bufio.Scanner reading whitespace-
// separated commands dispatched by name, generalized from gRPC vault
// entries to end-to-end-encrypted Note items.
func (a *App) Root(ctx context.Context) {
	fmt.Println("notesync CLI — type 'help' for commands")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(a.prompt())
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			a.printHelp()
		case "register":
			a.register(ctx)
		case "login":
			a.login(ctx)
		case "logout":
			a.logout(ctx)
		case "add", "addnote":
			a.addNote(ctx)
		case "list":
			a.list(ctx)
		case "show":
			if len(args) == 0 {
				fmt.Println("Usage: show <uuid>")
				continue
			}
			a.show(args[0])
		case "delete":
			if len(args) == 0 {
				fmt.Println("Usage: delete <uuid>")
				continue
			}
			a.deleteNote(ctx, args[0])
		case "sync":
			a.sync(ctx)
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		default:
			fmt.Println("Unknown command:", cmd)
		}
	}
}

func (a *App) printHelp() {
	if a.isSignedIn() {
		fmt.Println("Commands: addnote, list, show <uuid>, delete <uuid>, sync, logout, exit")
		return
	}
	fmt.Println("Commands: register, login, exit")
}
