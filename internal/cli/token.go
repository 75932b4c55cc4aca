package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/jwt"
)

// GenerateUserToken mints a JWT for a seeded user. Dev-only: do not call it from
// production code paths.
func GenerateUserToken(secret, userID, roleStr string, ttl time.Duration) (string, jwt.Claims, error) {
	role, err := user.ParseRole(roleStr)
	if err != nil {
		return "", jwt.Claims{}, fmt.Errorf("invalid role %q: %w", roleStr, err)
	}
	if ttl <= 0 {
		return "", jwt.Claims{}, errors.New("ttl must be positive")
	}

	mgr := jwt.NewManager(secret, ttl)
	token, claims, err := mgr.IssueUserToken(userID, role)
	if err != nil {
		return "", jwt.Claims{}, fmt.Errorf("issue token: %w", err)
	}

	return token, *claims, nil
}

// RunToken implements the token mode. It returns the process exit code.
func RunToken(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(ModeToken, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		userID = fs.String("user-id", "", "ID of the user (subject)")
		role   = fs.String("role", "RIDER", "User role: RIDER | DRIVER | ADMIN")
		secret = fs.String("secret", "", "JWT HMAC secret (HS256)")
		ttl    = fs.Duration("ttl", 2*time.Hour, "Token lifetime")
	)
	AttachUsage(fs, ModeToken)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *userID == "" || *secret == "" {
		fmt.Fprintln(stderr, "Error: --user-id and --secret are required")
		fs.Usage()
		return 2
	}

	token, claims, err := GenerateUserToken(*secret, *userID, *role, *ttl)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	fmt.Fprintln(stdout, "TOKEN:")
	fmt.Fprintln(stdout, token)
	fmt.Fprintln(stdout, "\nCLAIMS:")
	fmt.Fprintf(stdout, "  sub:  %s\n", claims.Subject)
	fmt.Fprintf(stdout, "  role: %s\n", claims.Role)
	fmt.Fprintf(stdout, "  iat:  %s\n", claims.IssuedAt.Time.UTC().Format(time.RFC3339))
	fmt.Fprintf(stdout, "  exp:  %s\n", claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
	return 0
}
