// authctl administers the authentication store: TOTP provisioning and reset, admin
// credential listing, session revocation and migrations.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"camp-auth/backend/internal/app"
	"camp-auth/backend/internal/config"
	"camp-auth/backend/internal/db/migrate"
	"camp-auth/backend/internal/logging"
	"camp-auth/backend/internal/session/domain"
)

var flagEmail = &cli.StringFlag{
	Name:     "email",
	Usage:    "Participant email",
	Required: true,
}

var flagQROut = &cli.StringFlag{
	Name:  "out",
	Value: "totp.png",
	Usage: "Path to write the provisioning QR code (PNG)",
}

var flagKind = &cli.StringFlag{
	Name:     "kind",
	Usage:    "Session kind: admin or participant",
	Required: true,
}

var flagDirection = &cli.StringFlag{
	Name:  "direction",
	Value: "up",
	Usage: "Migration direction: up or down",
}

var flagVerbose = &cli.BoolFlag{
	Name:  "verbose",
	Usage: "Log to stderr",
}

func main() {
	if err := newCLI(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "authctl:", err)
		os.Exit(1)
	}
}

func newCLI(stdout io.Writer) *cli.App {
	return &cli.App{
		Name:   "authctl",
		Usage:  "administer the authentication store",
		Writer: stdout,
		Flags:  []cli.Flag{flagVerbose},
		Commands: []*cli.Command{
			{
				Name:   "provision-totp",
				Usage:  "provision (or re-display) a participant's TOTP secret and write its QR code",
				Flags:  []cli.Flag{flagEmail, flagQROut},
				Action: withApp(provisionTOTP),
			},
			{
				Name:   "reset-totp",
				Usage:  "clear a participant's TOTP secret so the next provisioning creates a new one",
				Flags:  []cli.Flag{flagEmail},
				Action: withApp(resetTOTP),
			},
			{
				Name:   "list-admins",
				Usage:  "list administrators and their registered credentials",
				Action: withApp(listAdmins),
			},
			{
				Name:   "revoke-session",
				Usage:  "end the current session of a kind",
				Flags:  []cli.Flag{flagKind},
				Action: withApp(revokeSession),
			},
			{
				Name:   "migrate",
				Usage:  "apply SQL migrations for the configured store driver",
				Flags:  []cli.Flag{flagDirection},
				Action: runMigrate,
			},
		},
	}
}

// withApp loads config, builds the app for the command and closes it afterwards.
func withApp(fn func(cCtx *cli.Context, a *app.App) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		// authctl never serves /dev/otp.
		cfg.OTPReturnToClient = false
		log := logging.Discard()
		if cCtx.Bool(flagVerbose.Name) {
			log = logging.New(logging.Options{Debug: cfg.LogDebug, Service: "authctl", Output: os.Stderr})
		}
		a, err := app.New(cCtx.Context, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = a.Close(ctx)
		}()
		return fn(cCtx, a)
	}
}

func provisionTOTP(cCtx *cli.Context, a *app.App) error {
	prov, err := a.Codes.ProvisionTOTP(cCtx.Context, cCtx.String(flagEmail.Name))
	if err != nil {
		return err
	}
	out := cCtx.String(flagQROut.Name)
	if err := os.WriteFile(out, prov.QRCode, 0o600); err != nil {
		return fmt.Errorf("write qr code: %w", err)
	}
	state := "existing"
	if prov.Created {
		state = "new"
	}
	fmt.Fprintf(cCtx.App.Writer, "%s secret; QR code written to %s\n%s\n", state, out, prov.URI)
	return nil
}

func resetTOTP(cCtx *cli.Context, a *app.App) error {
	email := cCtx.String(flagEmail.Name)
	if err := a.Codes.ResetTOTP(cCtx.Context, email); err != nil {
		return err
	}
	fmt.Fprintf(cCtx.App.Writer, "TOTP secret cleared for %s\n", email)
	return nil
}

func listAdmins(cCtx *cli.Context, a *app.App) error {
	admins, err := a.Admins.List(cCtx.Context)
	if err != nil {
		return err
	}
	if len(admins) == 0 {
		fmt.Fprintln(cCtx.App.Writer, "no administrators")
		return nil
	}
	tw := tabwriter.NewWriter(cCtx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADMIN\tCREDENTIAL\tSIGN COUNT\tCREATED\tLAST USED")
	for _, admin := range admins {
		for _, c := range admin.Credentials {
			lastUsed := "never"
			if c.LastUsedAt != nil {
				lastUsed = c.LastUsedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
				admin.AdminID, hex.EncodeToString(c.ID), c.SignCount, c.CreatedAt.Format(time.RFC3339), lastUsed)
		}
	}
	return tw.Flush()
}

func revokeSession(cCtx *cli.Context, a *app.App) error {
	kind, err := domain.ParseKind(cCtx.String(flagKind.Name))
	if err != nil {
		return err
	}
	sess, err := a.Sessions.Lookup(cCtx.Context, kind)
	if err != nil {
		return err
	}
	if sess == nil {
		fmt.Fprintf(cCtx.App.Writer, "no %s session\n", kind)
		return nil
	}
	if err := a.Sessions.Revoke(cCtx.Context, kind, sess.ID); err != nil {
		return err
	}
	fmt.Fprintf(cCtx.App.Writer, "revoked %s session of %s\n", kind, sess.PrincipalID)
	return nil
}

func runMigrate(cCtx *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	var dsn string
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		dsn = cfg.DatabaseURL
	case config.StoreDriverSQLite:
		dsn = cfg.StorePath
	default:
		return fmt.Errorf("STORE_DRIVER=%s has no schema", cfg.StoreDriver)
	}
	err = migrate.Run(cfg.StoreDriver, dsn, cCtx.String(flagDirection.Name))
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	fmt.Fprintf(cCtx.App.Writer, "migrations %s applied to %s\n", cCtx.String(flagDirection.Name), cfg.StoreDriver)
	return nil
}
