package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"storefront/service"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func authCommands() []*cobra.Command {
	var email, password, firstName, lastName string

	login := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the credential for this session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if err := a.svc.SignIn(ctx, sessionID, email, password); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "signed in")
				return nil
			})
		},
	}
	login.Flags().StringVar(&email, "email", "", "Account email (required)")
	login.Flags().StringVar(&password, "password", "", "Account password (required)")
	login.MarkFlagRequired("email")
	login.MarkFlagRequired("password")

	signup := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				req := service.SignUpRequest{Email: email, FirstName: firstName, LastName: lastName, Password: password}
				if err := a.svc.SignUp(ctx, sessionID, req); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "account created")
				return nil
			})
		},
	}
	signup.Flags().StringVar(&email, "email", "", "Account email (required)")
	signup.Flags().StringVar(&password, "password", "", "Account password (required)")
	signup.Flags().StringVar(&firstName, "first-name", "", "First name")
	signup.Flags().StringVar(&lastName, "last-name", "", "Last name")
	signup.MarkFlagRequired("email")
	signup.MarkFlagRequired("password")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Forget this session's credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				return a.svc.SignOut(ctx, sessionID)
			})
		},
	}

	users := &cobra.Command{
		Use:   "users",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				us, err := a.svc.Users(ctx, sessionID)
				if err != nil {
					return err
				}
				return printJSON(cmd, us)
			})
		},
	}

	return []*cobra.Command{login, signup, logout, users}
}

func productsCmd() *cobra.Command {
	var f service.Filter
	cmd := &cobra.Command{
		Use:   "products [id]",
		Short: "Browse the catalog, or show one product",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if len(args) == 1 {
					id, err := parseID(args[0])
					if err != nil {
						return err
					}
					p, err := a.svc.Product(ctx, id)
					if err != nil {
						return err
					}
					return printJSON(cmd, p)
				}
				page, err := a.svc.Browse(ctx, f)
				if err != nil {
					return err
				}
				return printJSON(cmd, page)
			})
		},
	}
	cmd.Flags().StringVar(&f.Category, "category", "", "Only this category")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "Title contains, ignoring case")
	return cmd
}

// mutationCmd loads the cart, applies one change and waits for the remote
// store to accept or undo it.
func mutationCmd(use, short string, op func(*service.Service, context.Context, string, int64) (*service.Mutation, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <item-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				if _, err := a.svc.LoadCart(ctx, sessionID); err != nil {
					return err
				}
				m, err := op(a.svc, ctx, sessionID, id)
				if err != nil {
					return err
				}
				if err := m.Wait(ctx); err != nil {
					return fmt.Errorf("change undone: %w", err)
				}
				return printJSON(cmd, a.svc.Cart(sessionID))
			})
		},
	}
}

func cartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				view, err := a.svc.LoadCart(ctx, sessionID)
				if err != nil {
					return err
				}
				return printJSON(cmd, view)
			})
		},
	}

	add := &cobra.Command{
		Use:   "add <product-id> [quantity]",
		Short: "Add a product to the cart",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parseID(args[0])
			if err != nil {
				return err
			}
			qty := 1
			if len(args) == 2 {
				if qty, err = strconv.Atoi(args[1]); err != nil {
					return fmt.Errorf("invalid quantity %q", args[1])
				}
			}
			return withApp(func(ctx context.Context, a *app) error {
				view, err := a.svc.AddToCart(ctx, sessionID, productID, qty)
				if err != nil {
					return err
				}
				return printJSON(cmd, view)
			})
		},
	}

	cmd.AddCommand(add,
		mutationCmd("inc", "Increase an item's quantity by one", (*service.Service).IncreaseQuantity),
		mutationCmd("dec", "Decrease an item's quantity by one, removing it at zero", (*service.Service).DecreaseQuantity),
		mutationCmd("rm", "Remove an item", (*service.Service).RemoveItem),
	)
	return cmd
}

func checkoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Show the staged checkout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				st, err := a.svc.StagedCheckout(ctx, sessionID)
				if err != nil {
					return err
				}
				return printJSON(cmd, st)
			})
		},
	}

	stage := &cobra.Command{
		Use:   "stage",
		Short: "Stage the current cart for checkout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				st, err := a.svc.StageCheckout(ctx, sessionID)
				if err != nil {
					return err
				}
				return printJSON(cmd, st)
			})
		},
	}

	pay := &cobra.Command{
		Use:   "pay",
		Short: "Open a payment session for the staged checkout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				ref, err := a.svc.BeginPayment(ctx, sessionID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ref)
				return nil
			})
		},
	}

	confirm := &cobra.Command{
		Use:   "confirm",
		Short: "Place the order for the staged checkout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				res, err := a.svc.ConfirmCheckout(ctx, sessionID)
				if err != nil {
					return err
				}
				if len(res.Raw) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "order placed")
					return nil
				}
				return printJSON(cmd, res.Raw)
			})
		},
	}

	cmd.AddCommand(stage, pay, confirm)
	return cmd
}
