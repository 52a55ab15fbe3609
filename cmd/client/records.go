package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/atinyakov/GophSpend/internal/models"
)

func newUsersCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List and edit users",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.openApp(cmd.Context(), stackOptions{})
			if err != nil {
				return err
			}
			printUsers(cmd.OutOrStdout(), a.Users())
			return nil
		},
	}

	var in models.UserInput
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Name == "" || in.Email == "" {
				return errors.New("--name and --email are required")
			}
			a, err := e.openApp(cmd.Context(), stackOptions{})
			if err != nil {
				return err
			}
			u, err := a.AddUser(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added user %s (%s)\n", u.Name, u.ID)
			return nil
		},
	}
	add.Flags().StringVar(&in.Name, "name", "", "display name")
	add.Flags().StringVar(&in.Email, "email", "", "email address")
	add.Flags().StringVar(&in.Phone, "phone", "", "phone number")

	var patch models.UserInput
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a user's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.openApp(cmd.Context(), stackOptions{})
			if err != nil {
				return err
			}
			u, ok := a.User(args[0])
			if !ok {
				return fmt.Errorf("user %s not found", args[0])
			}
			fs := cmd.Flags()
			if fs.Changed("name") {
				u.Name = patch.Name
			}
			if fs.Changed("email") {
				u.Email = patch.Email
			}
			if fs.Changed("phone") {
				u.Phone = patch.Phone
			}
			if _, err := a.UpdateUser(cmd.Context(), u); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated user %s\n", u.ID)
			return nil
		},
	}
	update.Flags().StringVar(&patch.Name, "name", "", "display name")
	update.Flags().StringVar(&patch.Email, "email", "", "email address")
	update.Flags().StringVar(&patch.Phone, "phone", "", "phone number")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a user without expenses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.openApp(cmd.Context(), stackOptions{})
			if err != nil {
				return err
			}
			if err := a.DeleteUser(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, add, update, del)
	return cmd
}

func newExpensesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expenses",
		Short: "List and edit expenses",
	}

	var userFilter string
	list := &cobra.Command{
		Use:   "list",
		Short: "List expenses",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.openApp(cmd.Context(), stackOptions{})
			if err != nil {
				return err
			}
			expenses := a.Expenses()
			if userFilter != "" {
				filtered := expenses[:0]
				for _, x := range expenses {
					if x.UserID == userFilter {
						filtered = append(filtered, x)
					}
				}
				expenses = filtered
			}
			printExpenses(cmd.OutOrStdout(), expenses)
			return nil
		},
	}
	list.Flags().StringVar(&userFilter, "user", "", "only expenses of this user id")

	var in models.ExpenseInput
	add := &cobra.Command{
		Use:   "add",
		Short: "Record an expense",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if in.Date == "" {
				in.Date = now.Format("2006-01-02")
			}
			if in.Time == "" {
				in.Time = now.Format("15:04")
			}
			a, err := e.openApp(cmd.Context(), stackOptions{})
			if err != nil {
				return err
			}
			x, err := a.AddExpense(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added expense %s (%s)\n", x.Title, x.ID)
			return nil
		},
	}
	expenseFlags(add, &in)

	var patch models.ExpenseInput
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change an expense's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.openApp(cmd.Context(), stackOptions{})
			if err != nil {
				return err
			}
			x, ok := a.Expense(args[0])
			if !ok {
				return fmt.Errorf("expense %s not found", args[0])
			}
			fs := cmd.Flags()
			set := func(name string, apply func()) {
				if fs.Changed(name) {
					apply()
				}
			}
			set("title", func() { x.Title = patch.Title })
			set("description", func() { x.Description = patch.Description })
			set("amount", func() { x.Amount = patch.Amount })
			set("category", func() { x.Category = patch.Category })
			set("user", func() { x.UserID = patch.UserID })
			set("date", func() { x.Date = patch.Date })
			set("time", func() { x.Time = patch.Time })
			if _, err := a.UpdateExpense(cmd.Context(), x); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated expense %s\n", x.ID)
			return nil
		},
	}
	expenseFlags(update, &patch)

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an expense",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.openApp(cmd.Context(), stackOptions{})
			if err != nil {
				return err
			}
			if err := a.DeleteExpense(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted expense %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, add, update, del)
	return cmd
}

func expenseFlags(cmd *cobra.Command, in *models.ExpenseInput) {
	fs := cmd.Flags()
	fs.StringVar(&in.Title, "title", "", "short title")
	fs.StringVar(&in.Description, "description", "", "longer description")
	fs.Float64Var(&in.Amount, "amount", 0, "amount spent")
	fs.StringVar(&in.Category, "category", "", "category label")
	fs.StringVar(&in.UserID, "user", "", "id of the user who paid")
	fs.StringVar(&in.Date, "date", "", "date as YYYY-MM-DD (default today)")
	fs.StringVar(&in.Time, "time", "", "time as HH:MM (default now)")
}

func newSyncCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push local records and pull the server state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.openApp(cmd.Context(), stackOptions{})
			if err != nil {
				return err
			}
			if err := a.SyncNow(cmd.Context()); err != nil {
				return err
			}
			s := a.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "Synced: %d users, %d expenses\n", len(s.Users), len(s.Expenses))
			return nil
		},
	}
}

func newSummaryCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show spending totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.openApp(cmd.Context(), stackOptions{})
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), a.Summary())
			return nil
		},
	}
}
