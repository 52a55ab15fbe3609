package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/atinyakov/GophSpend/internal/client/app"
	"github.com/atinyakov/GophSpend/internal/models"
)

const shellHelp = `Available commands:
  users                 list users
  expenses              list expenses
  add-user              add a user (prompts for fields)
  add-expense           record an expense (prompts for fields)
  delete-user <id>      delete a user without expenses
  delete-expense <id>   delete an expense
  sync                  sync with the server now
  summary               spending totals
  status                connectivity and sync state
  help, exit`

func newShellCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell that keeps syncing in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.openApp(cmd.Context(), stackOptions{background: true})
			if err != nil {
				return err
			}
			return repl(cmd.Context(), a, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// repl runs the interactive shell loop until exit or end of input.
func repl(ctx context.Context, a *app.App, in io.Reader, out io.Writer) error {
	last := a.Snapshot()
	unsubscribe := a.Subscribe(func(s app.Snapshot) {
		if s.IsOnline != last.IsOnline {
			fmt.Fprintf(out, "\n[%s]\n", onlineLabel(s.IsOnline))
		}
		if s.SyncStatus != last.SyncStatus && s.SyncStatus == models.SyncError {
			fmt.Fprintln(out, "\n[sync failed, local changes are kept]")
		}
		last = s
	})
	defer unsubscribe()

	scanner := bufio.NewScanner(in)
	p := prompter{scanner: scanner, out: out}
	for {
		fmt.Fprint(out, "gophspend> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}

		var err error
		switch args[0] {
		case "help":
			fmt.Fprintln(out, shellHelp)
		case "users":
			printUsers(out, a.Users())
		case "expenses":
			printExpenses(out, a.Expenses())
		case "add-user":
			var u models.User
			u, err = a.AddUser(ctx, p.user())
			if err == nil {
				fmt.Fprintf(out, "Added user %s (%s)\n", u.Name, u.ID)
			}
		case "add-expense":
			var input models.ExpenseInput
			if input, err = p.expense(); err == nil {
				var x models.Expense
				if x, err = a.AddExpense(ctx, input); err == nil {
					fmt.Fprintf(out, "Added expense %s (%s)\n", x.Title, x.ID)
				}
			}
		case "delete-user", "delete-expense":
			if len(args) < 2 {
				fmt.Fprintf(out, "Usage: %s <id>\n", args[0])
				continue
			}
			if args[0] == "delete-user" {
				err = a.DeleteUser(ctx, args[1])
			} else {
				err = a.DeleteExpense(ctx, args[1])
			}
			if err == nil {
				fmt.Fprintln(out, "Deleted")
			}
		case "sync":
			if err = a.SyncNow(ctx); err == nil {
				fmt.Fprintln(out, "Synced")
			}
		case "summary":
			printSummary(out, a.Summary())
		case "status":
			s := a.Snapshot()
			fmt.Fprintf(out, "%s, sync %s, %d users, %d expenses\n",
				onlineLabel(s.IsOnline), s.SyncStatus, len(s.Users), len(s.Expenses))
		case "exit", "quit":
			fmt.Fprintln(out, "Bye")
			return nil
		default:
			fmt.Fprintln(out, "Unknown command. Type 'help' for a list of commands.")
		}
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

func onlineLabel(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

// prompter asks for record fields one line at a time.
type prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func (p prompter) ask(label string) string {
	fmt.Fprintf(p.out, "%s: ", label)
	if !p.scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(p.scanner.Text())
}

func (p prompter) user() models.UserInput {
	return models.UserInput{
		Name:  p.ask("Name"),
		Email: p.ask("Email"),
		Phone: p.ask("Phone (optional)"),
	}
}

func (p prompter) expense() (models.ExpenseInput, error) {
	in := models.ExpenseInput{
		Title:       p.ask("Title"),
		Description: p.ask("Description"),
	}
	amount, err := strconv.ParseFloat(p.ask("Amount"), 64)
	if err != nil {
		return in, errors.New("amount must be a number")
	}
	in.Amount = amount
	in.Category = p.ask("Category")
	in.UserID = p.ask("User id")

	now := time.Now()
	in.Date = p.ask("Date (YYYY-MM-DD, empty for today)")
	if in.Date == "" {
		in.Date = now.Format("2006-01-02")
	}
	in.Time = p.ask("Time (HH:MM, empty for now)")
	if in.Time == "" {
		in.Time = now.Format("15:04")
	}
	return in, nil
}
