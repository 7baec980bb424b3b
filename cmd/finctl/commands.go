package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"finboard/internal/core"
	"finboard/internal/feed"
)

// viewportRows is the height the feed command pretends the terminal has.
const viewportRows = 24

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "finctl",
		Short:         "Terminal client for finboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.server, "server", a.server, "API base URL (env FINBOARD_URL)")
	root.PersistentFlags().StringVar(&a.credsPath, "credentials", a.credsPath, "credentials file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(
		newRegisterCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newFeedCmd(a),
		newAddCmd(a),
		newEditCmd(a),
		newRemoveCmd(a),
		newCategoriesCmd(a),
		newDashboardCmd(a),
	)
	return root
}

func credentialFlags(cmd *cobra.Command, email, password *string) {
	cmd.Flags().StringVar(email, "email", "", "account email")
	cmd.Flags().StringVar(password, "password", "", "account password (env FINBOARD_PASSWORD, prompted if empty)")
	_ = cmd.MarkFlagRequired("email")
}

func (a *app) password(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("FINBOARD_PASSWORD"); env != "" {
		return env, nil
	}
	return a.readLine("Password: ")
}

func (a *app) signIn(ctx context.Context, email, password string) error {
	c, err := a.client(a.server)
	if err != nil {
		return err
	}
	sess, err := c.Login(ctx, email, password)
	if errors.Is(err, core.ErrUnauthorized) {
		return errors.New("invalid email or password")
	}
	if err != nil {
		return err
	}
	creds := credentials{Server: a.server, Email: sess.Email, Token: sess.Token, ExpiresAt: sess.ExpiresAt}
	if err := saveCredentials(a.credsPath, creds); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s until %s\n", sess.Email, sess.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return nil
}

func newRegisterCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := a.password(password)
			if err != nil {
				return err
			}
			c, err := a.client(a.server)
			if err != nil {
				return err
			}
			if err := c.Register(cmd.Context(), email, pw); err != nil {
				return err
			}
			return a.signIn(cmd.Context(), email, pw)
		},
	}
	credentialFlags(cmd, &email, &password)
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := a.password(password)
			if err != nil {
				return err
			}
			return a.signIn(cmd.Context(), email, pw)
		},
	}
	credentialFlags(cmd, &email, &password)
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := removeCredentials(a.credsPath); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Signed out")
			return nil
		},
	}
}

// loadAll pages through the feed until it is exhausted or stops advancing.
func loadAll(ctx context.Context, ctrl *feed.Controller) error {
	for !ctrl.State().Exhausted {
		before := ctrl.State().Cursor
		if err := ctrl.LoadNextPage(ctx); err != nil {
			return err
		}
		if ctrl.State().Cursor == before {
			return errNotSignedIn
		}
	}
	return nil
}

func newFeedCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show expenses newest first; press Enter to load more",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds, api, err := a.session()
			if err != nil {
				return err
			}
			ctrl := a.controller(creds, api)
			defer ctrl.Close()
			ctx := cmd.Context()

			if all {
				if err := loadAll(ctx, ctrl); err != nil {
					return err
				}
				printExpenses(a.out, ctrl.State().Items, true)
				return nil
			}

			if err := ctrl.LoadNextPage(ctx); err != nil {
				return err
			}
			st := ctrl.State()
			if st.Cursor == 1 {
				return errNotSignedIn
			}
			printExpenses(a.out, st.Items, true)
			shown := len(st.Items)

			for !st.Exhausted {
				line, err := a.readLine("-- Enter for more, q to quit --")
				if err != nil || strings.EqualFold(strings.TrimSpace(line), "q") {
					return nil
				}
				rows := float64(shown + 1)
				ctrl.OnScroll(feed.Viewport{
					ScrollTop:      max(rows-viewportRows, 0),
					ViewportHeight: viewportRows,
					DocumentHeight: rows,
				})
				ctrl.Wait()

				st = ctrl.State()
				if len(st.Items) > shown {
					printExpenses(a.out, st.Items[shown:], false)
					shown = len(st.Items)
				}
				if st.Cursor == 1 {
					return errNotSignedIn
				}
			}
			fmt.Fprintln(a.errOut, "-- end of feed --")
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "load every page without prompting")
	cmd.Flags().IntVar(&a.pageSize, "page-size", a.pageSize, "expenses per page")
	return cmd
}

type expenseFlags struct {
	description, amount, category, date string
}

func (f *expenseFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "what the money went on")
	cmd.Flags().StringVarP(&f.amount, "amount", "a", "", "amount, e.g. 5.75 or 5,75")
	cmd.Flags().StringVarP(&f.category, "category", "c", "", "category")
	cmd.Flags().StringVar(&f.date, "date", "", "date as YYYY-MM-DD (default today)")
}

// apply overwrites the fields of d whose flags were set.
func (f *expenseFlags) apply(cmd *cobra.Command, d core.ExpenseDraft) (core.ExpenseDraft, error) {
	if cmd.Flags().Changed("description") {
		d.Description = f.description
	}
	if cmd.Flags().Changed("category") {
		d.Category = f.category
	}
	if cmd.Flags().Changed("amount") {
		m, err := core.MoneyFromDecimal(f.amount)
		if err != nil {
			return d, fmt.Errorf("amount %q: %w", f.amount, err)
		}
		d.Amount = m
	}
	if cmd.Flags().Changed("date") {
		dt, err := core.ParseDate(f.date)
		if err != nil {
			return d, err
		}
		d.Date = dt
	}
	return d, nil
}

func newAddCmd(a *app) *cobra.Command {
	var f expenseFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record an expense",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := a.now()
			d, err := f.apply(cmd, core.ExpenseDraft{Date: core.NewDate(now.Year(), int(now.Month()), now.Day())})
			if err != nil {
				return err
			}
			if err := d.Validate(); err != nil {
				return err
			}
			creds, api, err := a.session()
			if err != nil {
				return err
			}
			ctrl := a.controller(creds, api)
			defer ctrl.Close()

			e, err := ctrl.AddExpense(cmd.Context(), d)
			if err != nil {
				return a.direct(err)
			}
			printExpenses(a.out, []core.Expense{e}, true)
			return nil
		},
	}
	f.register(cmd)
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var f expenseFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of an expense",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, api, err := a.session()
			if err != nil {
				return err
			}
			ctrl := a.controller(creds, api)
			defer ctrl.Close()

			// The API has no single-record read; find the record in the feed.
			if err := loadAll(cmd.Context(), ctrl); err != nil {
				return err
			}
			items := ctrl.State().Items
			i := slices.IndexFunc(items, func(e core.Expense) bool { return e.ID == args[0] })
			if i < 0 {
				return fmt.Errorf("expense %s: %w", args[0], core.ErrNotFound)
			}

			d, err := f.apply(cmd, items[i].Draft())
			if err != nil {
				return err
			}
			e, err := ctrl.UpdateExpense(cmd.Context(), items[i].WithDraft(d))
			if err != nil {
				return a.direct(err)
			}
			printExpenses(a.out, []core.Expense{e}, true)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"remove"},
		Short:   "Delete expenses",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, api, err := a.session()
			if err != nil {
				return err
			}
			ctrl := a.controller(creds, api)
			defer ctrl.Close()

			var errs []error
			for _, id := range args {
				if err := ctrl.RemoveExpense(cmd.Context(), id); err != nil {
					if errors.Is(err, core.ErrUnauthorized) {
						return a.direct(err)
					}
					errs = append(errs, fmt.Errorf("remove %s: %w", id, err))
				}
			}
			return errors.Join(errs...)
		},
	}
}

func newCategoriesCmd(a *app) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List the categories in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds, api, err := a.session()
			if err != nil {
				return err
			}
			var cats []string
			if local {
				ctrl := a.controller(creds, api)
				defer ctrl.Close()
				if err := loadAll(cmd.Context(), ctrl); err != nil {
					return err
				}
				cats = ctrl.DeriveCategories()
			} else {
				cats, err = api.Categories(cmd.Context(), creds.Token)
				if err != nil {
					return a.direct(err)
				}
			}
			for _, c := range cats {
				fmt.Fprintln(a.out, c)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "derive from the loaded feed instead of asking the server")
	return cmd
}

func newDashboardCmd(a *app) *cobra.Command {
	var year, month int
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the month overview and the latest expenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds, api, err := a.session()
			if err != nil {
				return err
			}
			d, err := api.Dashboard(cmd.Context(), creds.Token, year, month)
			if err != nil {
				return a.direct(err)
			}

			fmt.Fprintf(a.out, "%04d-%02d  total %s\n\n", d.Overview.Year, d.Overview.Month, d.Overview.Total)
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tAMOUNT")
			for _, c := range d.Overview.ByCategory {
				fmt.Fprintf(tw, "%s\t%s\n", c.Name, c.Amount)
			}
			_ = tw.Flush()

			if len(d.Recent) > 0 {
				fmt.Fprintln(a.out)
				printExpenses(a.out, d.Recent, true)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year (default current)")
	cmd.Flags().IntVar(&month, "month", 0, "month 1-12 (default current)")
	return cmd
}
