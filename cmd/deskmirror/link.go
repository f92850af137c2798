package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/deskmirror/internal/config"
	"github.com/zulandar/deskmirror/internal/db"
	"github.com/zulandar/deskmirror/internal/models"
	"github.com/zulandar/deskmirror/internal/sd"
	"github.com/zulandar/deskmirror/internal/store"
	"golang.org/x/term"
)

func newLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link <user-id>",
		Short: "Link a chat identity to a ServiceDesk account",
		Long: "Authenticates against ServiceDesk with prompted credentials and creates " +
			"(or replaces) the session row for the given chat user id. Re-linking lifts " +
			"an auth-failed freeze.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			var userID int64
			if _, err := fmt.Sscanf(args[0], "%d", &userID); err != nil || userID == 0 {
				return fmt.Errorf("link: invalid user id %q", args[0])
			}

			username, password, err := promptCredentials(cmd)
			if err != nil {
				return err
			}
			return link(cmd, cfg, userID, username, password)
		},
	}
	return cmd
}

func promptCredentials(cmd *cobra.Command) (username, password string, err error) {
	out := cmd.OutOrStdout()

	fmt.Fprint(out, "ServiceDesk username: ")
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", "", fmt.Errorf("link: read username: %w", err)
	}
	username = strings.TrimSpace(line)
	if username == "" {
		return "", "", fmt.Errorf("link: username is required")
	}

	fmt.Fprint(out, "ServiceDesk password: ")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", "", fmt.Errorf("link: read password: %w", err)
		}
		password = string(raw)
	} else {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("link: read password: %w", err)
		}
		password = strings.TrimSpace(line)
	}
	if password == "" {
		return "", "", fmt.Errorf("link: password is required")
	}
	return username, password, nil
}

func link(cmd *cobra.Command, cfg *config.Config, userID int64, username, password string) error {
	client, err := sd.New(cfg.SD.BaseURL, cfg.SD.APIPrefix, cfg.SD.Timeout())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	auth, err := client.Authenticate(ctx, username, password)
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}

	sess := &models.Session{
		UserID:         userID,
		SDUserID:       auth.SDUserID,
		Role:           normalizeRole(auth.Role),
		Username:       auth.Username,
		Password:       password,
		Token:          &auth.Token,
		TokenExpiresAt: &auth.ExpiresAt,
		LinkedAt:       time.Now(),
		LastSeenAt:     time.Now(),
	}

	// Best effort: denormalize region/location for dispatcher filtering.
	if profile, perr := client.GetUser(ctx, auth.Token, auth.SDUserID); perr == nil && profile.Address != nil {
		sess.Region = strings.TrimSpace(profile.Address.Region)
		sess.Location = strings.TrimSpace(profile.Address.Location)
		sess.FullAddress = profile.Address.FullAddress
		id := profile.Address.ID
		sess.AddressID = &id
	}

	gdb, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}
	if err := store.UpsertSession(gdb, sess); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Linked user %d to SD account %s (id=%d, role=%s)\n",
		userID, auth.Username, auth.SDUserID, sess.Role)
	return nil
}

// normalizeRole folds a remote role onto the closed local set, defaulting
// to USER for anything unknown.
func normalizeRole(role string) string {
	switch strings.ToUpper(strings.TrimSpace(role)) {
	case models.RoleExecutor:
		return models.RoleExecutor
	case models.RoleDispatcher:
		return models.RoleDispatcher
	case models.RoleAdmin:
		return models.RoleAdmin
	default:
		return models.RoleUser
	}
}
