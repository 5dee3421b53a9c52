// cmd/libradesk/commands.go
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var nowFunc = time.Now

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", st.Driver())
			return nil
		},
	}
}

func newStaffCmd(a *app) *cobra.Command {
	staffCmd := &cobra.Command{
		Use:   "staff",
		Short: "Manage staff accounts",
	}

	var (
		username string
		admin    bool
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a staff account",
		Long:  "Create a staff account. The password is prompted for, or read from the first line of stdin when it is not a terminal.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), "Password: ")
			if err != nil {
				return err
			}

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			svc, err := a.services(st)
			if err != nil {
				return err
			}

			p, err := svc.auth.CreateStaff(cmd.Context(), username, password, admin)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created staff %s (%s, admin=%t)\n", p.Username, p.ID, p.Admin)
			return nil
		},
	}
	createCmd.Flags().StringVarP(&username, "username", "u", "", "Login name")
	createCmd.Flags().BoolVar(&admin, "admin", false, "Allow the account to create other staff")
	_ = createCmd.MarkFlagRequired("username")

	staffCmd.AddCommand(createCmd)
	return staffCmd
}

// readPassword masks input on a terminal and reads one line otherwise.
func readPassword(in io.Reader, prompt io.Writer, label string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(prompt, label)
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	sc := bufio.NewScanner(in)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", errors.New("no password on stdin")
	}
	return strings.TrimSpace(sc.Text()), nil
}

func newLoansCmd(a *app) *cobra.Command {
	loansCmd := &cobra.Command{
		Use:   "loans",
		Short: "Loan maintenance",
	}
	loansCmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Recompute overdue status and fines of every outstanding loan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			svc, err := a.services(st)
			if err != nil {
				return err
			}

			n, err := svc.circulation.RefreshOutstanding(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d loans refreshed\n", n)
			return nil
		},
	})
	return loansCmd
}

func newAuditCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check the inventory counters against outstanding loans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "table" && output != "json" {
				return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
			}
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			svc, err := a.services(st)
			if err != nil {
				return err
			}

			report := svc.auditor.Run(cmd.Context())
			out := cmd.OutOrStdout()
			if output == "json" {
				b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(out, string(b))
			} else {
				for _, r := range report.Results {
					mark := "ok"
					if !r.Held {
						mark = "FAIL"
					}
					_, _ = fmt.Fprintf(out, "%-4s  %-22s  expected %s, got %g\n", mark, r.Name, r.Expected, r.Actual)
				}
			}

			if n := len(report.Violations()); n > 0 {
				return fmt.Errorf("audit found %d failing checks", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	return cmd
}
