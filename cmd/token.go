package cmd

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/song-requests/internal"
	"github.com/frahmantamala/song-requests/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin access token",
	Long:  `Mint a signed bearer token for the admin endpoints. Operators are managed outside this service.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		if tokenUserID == "" {
			log.Fatal("--user is required")
		}

		generator := auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.AdminTokenTTL)
		issued, err := generator.GenerateAccessToken(internal.AdminUser{
			ID:             tokenUserID,
			Email:          tokenEmail,
			OrganizationID: tokenOrgID,
			Permissions:    splitPermissions(tokenPermissions),
		})
		if err != nil {
			log.Fatalf("failed to mint token: %v", err)
		}

		fmt.Println(issued.Token)
		fmt.Println("expires at:", issued.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
	},
}

var (
	tokenUserID      string
	tokenEmail       string
	tokenOrgID       string
	tokenPermissions string
)

func splitPermissions(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "Operator id")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "Operator email")
	tokenCmd.Flags().StringVar(&tokenOrgID, "org", "", "Organization the operator belongs to")
	tokenCmd.Flags().StringVar(&tokenPermissions, "permissions", auth.PermissionManageRequests, "Comma separated permissions")

	rootCmd.AddCommand(tokenCmd)
}
