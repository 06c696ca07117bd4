// Package cli implements the adminctl operator commands: provisioning staff
// accounts and inspecting the mail queue.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/storeadmin/storeadmin/internal/accounts"
	"github.com/storeadmin/storeadmin/internal/identity"
	"github.com/storeadmin/storeadmin/internal/shared"
	"github.com/storeadmin/storeadmin/jobs"
)

// Deps are the stores the commands operate on.
type Deps struct {
	Users    identity.Repository
	Accounts accounts.Provisioner
	Queue    jobs.QueueInspector
}

// New builds the root command.
func New(deps Deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "adminctl",
		Short:         "Operate storeadmin staff accounts and queues",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.AddCommand(newAdminCmd(deps), newJobsCmd(deps))
	return root
}

func newAdminCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Manage admin accounts"}
	cmd.AddCommand(
		newAdminCreateCmd(deps),
		newAdminActiveCmd(deps, "activate", true),
		newAdminActiveCmd(deps, "deactivate", false),
		newAdminPermissionCmd(deps, "grant", true),
		newAdminPermissionCmd(deps, "revoke", false),
	)
	return cmd
}

type createInput struct {
	Email     string `validate:"required,email"`
	Password  string `validate:"omitempty,min=8,pwbytes"`
	FirstName string `validate:"max=100"`
	LastName  string `validate:"max=100"`
}

func newAdminCreateCmd(deps Deps) *cobra.Command {
	var (
		in          createInput
		role        string
		permissions []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account, registering the identity when it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := shared.NewValidator().Struct(in); err != nil {
				return fmt.Errorf("invalid input: %w", err)
			}
			r := accounts.Role(role)
			if !r.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			user, err := ensureUser(ctx, deps.Users, in)
			if err != nil {
				return err
			}
			account := &accounts.AdminAccount{
				ID:          user.ID,
				Email:       user.Email,
				Role:        r,
				Permissions: grants(permissions),
				FirstName:   in.FirstName,
				LastName:    in.LastName,
				IsActive:    true,
			}
			if err := deps.Accounts.CreateAdminAccount(ctx, account); err != nil {
				return err
			}
			return printJSON(cmd, account)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&in.Email, "email", "", "account email")
	flags.StringVar(&in.Password, "password", "", "password for a new identity")
	flags.StringVar(&in.FirstName, "first-name", "", "first name")
	flags.StringVar(&in.LastName, "last-name", "", "last name")
	flags.StringVar(&role, "role", string(accounts.RoleAdmin), "one of super_admin, admin, manager, analyst")
	flags.StringSliceVar(&permissions, "permission", nil, "permission to grant, repeatable")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func ensureUser(ctx context.Context, users identity.Repository, in createInput) (*identity.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	user, err := users.FindByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if in.Password == "" {
		return nil, fmt.Errorf("no identity for %s: --password is required to register one", email)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user = &identity.User{
		Email:        email,
		PasswordHash: string(hash),
		Profile:      identity.Profile{FirstName: in.FirstName, LastName: in.LastName},
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func grants(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			out[name] = true
		}
	}
	return out
}

func newAdminActiveCmd(deps Deps, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <admin-id>",
		Short: fmt.Sprintf("Mark an admin account %sd", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.Accounts.SetAdminActive(cmd.Context(), args[0], active); err != nil {
				return describe(err, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %sd\n", args[0], use)
			return nil
		},
	}
}

func newAdminPermissionCmd(deps Deps, use string, granted bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <admin-id> <permission>",
		Short: fmt.Sprintf("%s a named permission", strings.ToUpper(use[:1])+use[1:]),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.Accounts.SetAdminPermission(cmd.Context(), args[0], args[1], granted); err != nil {
				return describe(err, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s=%t\n", args[0], args[1], granted)
			return nil
		},
	}
}

func newJobsCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Inspect background jobs"}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show mail queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.Queue == nil {
				return errors.New("queue inspector not configured")
			}
			stats, err := jobs.Stats(deps.Queue)
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	})
	return cmd
}

func describe(err error, id string) error {
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("admin %s not found", id)
	}
	return err
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
