package commands

import (
	"context"
	"log/slog"
	"os"
	"time"

	"skolarena/services/portal"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

// runs the out-of-band BankID login and blocks until the user has
// confirmed on their device
func login(ctx context.Context, personalNumber string) *portal.Service {
	svc, err := portal.NewService()
	if err != nil {
		fatal("failed to initialize", err)
	}

	checker, err := svc.Login(ctx, personalNumber)
	if err != nil {
		fatal("failed to start login", err)
	}

	if !svc.IsFake() {
		slog.Info("open BankID on your other device and confirm the login")
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	if err := checker.Wait(waitCtx); err != nil {
		checker.Cancel()
		fatal("login failed", err)
	}

	slog.Info("logged in")
	return svc
}

var loginCmd = &cobra.Command{
	Use:   "login <personal number>",
	Short: "Logs in with BankID and prints the guardian profile.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc := login(cmd.Context(), args[0])

		user, err := svc.GetUser(cmd.Context())
		if err != nil {
			fatal("failed to fetch profile", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"First name", "Last name", "Email"})
		t.AppendRow(table.Row{user.FirstName, user.LastName, user.Email})
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
