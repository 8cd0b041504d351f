package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"openbadges/pkg/derivation"
	"openbadges/pkg/domain"
)

// derivedOutput is the printable result of a derivation.
type derivedOutput struct {
	Kind    string `json:"kind" yaml:"kind"`
	Address string `json:"address" yaml:"address"`
	DID     string `json:"did" yaml:"did"`
	Nonce   uint8  `json:"nonce" yaml:"nonce"`
}

func newDerivedOutput(kind string, d derivation.Derived) derivedOutput {
	return derivedOutput{
		Kind:    kind,
		Address: d.Address.String(),
		DID:     d.Address.DID(),
		Nonce:   d.Nonce,
	}
}

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Derive ledger addresses",
}

var deriveIssuerCmd = &cobra.Command{
	Use:   "issuer <authority>",
	Short: "Derive the issuer profile address for an authority wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		authority, err := parseArg("authority", args[0])
		if err != nil {
			return err
		}
		d, err := engine.Issuer(authority)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), newDerivedOutput("issuer", d))
	},
}

var deriveAchievementCmd = &cobra.Command{
	Use:   "achievement <issuer> <name>",
	Short: "Derive an achievement address from its issuer profile and name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		issuer, err := parseArg("issuer", args[0])
		if err != nil {
			return err
		}
		d, err := engine.Achievement(issuer, args[1])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), newDerivedOutput("achievement", d))
	},
}

var deriveCredentialCmd = &cobra.Command{
	Use:   "credential <achievement> <issuer> <recipient>",
	Short: "Derive the credential address for a recipient",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		var addrs [3]domain.Address
		for i, label := range []string{"achievement", "issuer", "recipient"} {
			if addrs[i], err = parseArg(label, args[i]); err != nil {
				return err
			}
		}
		d, err := engine.Credential(addrs[0], addrs[1], addrs[2])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), newDerivedOutput("credential", d))
	},
}

func parseArg(label, value string) (domain.Address, error) {
	addr, err := domain.ParseAddress(value)
	if err != nil {
		return domain.Address{}, fmt.Errorf("invalid %s address %q: %w", label, value, err)
	}
	return addr, nil
}

func init() {
	deriveCmd.AddCommand(deriveIssuerCmd, deriveAchievementCmd, deriveCredentialCmd)
	rootCmd.AddCommand(deriveCmd)
}
