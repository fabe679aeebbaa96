package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/song-requests/internal/core/datamodel/organization"
	tenantRepo "github.com/frahmantamala/song-requests/internal/tenant/postgres"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample organizations",
	Long:  `Seed the database with sample organizations for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gormDB, err := initGorm(db)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		orgs := []struct {
			Slug string
			Name string
		}{
			{"general", "General Stage"},
			{"dj-nova", "DJ Nova"},
			{"the-lounge", "The Lounge"},
		}

		if clearData {
			slugs := make([]string, 0, len(orgs))
			for _, o := range orgs {
				slugs = append(slugs, o.Slug)
			}
			if err := gormDB.Where("slug IN ?", slugs).Delete(&organization.Organization{}).Error; err != nil {
				log.Fatalf("failed to clear organizations: %v", err)
			}
			fmt.Println("Cleared seeded organizations")
		}

		repo := tenantRepo.NewOrganizationRepository(gormDB)
		ctx := context.Background()
		for _, o := range orgs {
			if existing, err := repo.GetBySlug(ctx, o.Slug); err == nil && existing != nil {
				fmt.Println("organization already exists:", o.Slug, existing.ID)
				continue
			}
			org := &organization.Organization{
				ID:        uuid.NewString(),
				Slug:      o.Slug,
				Name:      o.Name,
				CreatedAt: time.Now().UTC(),
			}
			if err := repo.Create(ctx, org); err != nil {
				log.Fatalf("failed to insert organization %s: %v", o.Slug, err)
			}
			fmt.Println("Seeded organization:", o.Slug, org.ID)
		}

		fmt.Println("Seeding complete")
	},
}
