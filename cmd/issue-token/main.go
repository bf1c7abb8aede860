// Command issue-token signs an access token with the service's JWT secret.
// Accounts live in an external identity service; this is for operators and
// local development.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	if err := util.InitLogger("issue-token", cfg.Server.Env); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer util.SyncLogger()

	if err := run(os.Args[1:], cfg.Auth.JWTSecret, os.Stdout); err != nil {
		util.GetLogger().Error("Issue token failed", zap.Error(err))
		util.SyncLogger()
		os.Exit(1)
	}
}

func run(args []string, secret string, out io.Writer) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	var (
		userID int64
		role   string
		ttl    time.Duration
	)
	fs.Int64Var(&userID, "user", 0, "user id to put in the token subject")
	fs.StringVar(&role, "role", string(models.RoleUser), "role claim: user or admin")
	fs.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if userID <= 0 {
		return errors.New("--user must be a positive id")
	}
	if r := models.Role(role); r != models.RoleUser && r != models.RoleAdmin {
		return errors.Errorf("unknown role %q", role)
	}
	if ttl <= 0 {
		return errors.New("--ttl must be positive")
	}

	auth := api.NewAuthenticator(secret, "")
	token, err := auth.Issue(userID, models.Role(role), ttl)
	if err != nil {
		return errors.Wrap(err, "sign token")
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
