package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"openbadges/internal/authz"
)

var (
	tokenScopes []string
	tokenTTL    time.Duration
)

type tokenOutput struct {
	Token     string    `json:"access_token" yaml:"access_token"`
	Wallet    string    `json:"wallet" yaml:"wallet"`
	Scope     string    `json:"scope" yaml:"scope"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
}

var tokenCmd = &cobra.Command{
	Use:   "token <wallet>",
	Short: "Mint a bearer token signed with the configured key",
	Long: `Mint a bearer token for a wallet. The token carries the wallet claim
and the requested scopes, and is signed with auth.jwt_signing_key.

Without --scope every Open Badges scope is granted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		wallet, err := parseArg("wallet", args[0])
		if err != nil {
			return err
		}
		scopes, err := parseScopeFlags(tokenScopes)
		if err != nil {
			return err
		}

		verifier := authz.NewJWTVerifier(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
		token, err := verifier.GenerateToken(wallet, scopes, tokenTTL)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), tokenOutput{
			Token:     token,
			Wallet:    wallet.String(),
			Scope:     scopes.Claim(),
			ExpiresAt: time.Now().Add(tokenTTL).UTC().Truncate(time.Second),
		})
	},
}

func parseScopeFlags(values []string) (authz.ScopeSet, error) {
	if len(values) == 0 {
		return authz.NewScopeSet(authz.AllScopes()...), nil
	}
	scopes := make([]authz.Scope, 0, len(values))
	for _, v := range values {
		s := authz.Scope(v)
		if !s.IsValid() {
			s = authz.Scope(authz.ScopePrefix + v)
		}
		if !s.IsValid() {
			return nil, fmt.Errorf("unknown scope %q", v)
		}
		scopes = append(scopes, s)
	}
	return authz.NewScopeSet(scopes...), nil
}

func init() {
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", nil, "scope to grant, full URI or short name such as credential.upsert (repeatable)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
