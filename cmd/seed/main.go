package main

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"pos-system/config"
	"pos-system/internal/app"
	"pos-system/internal/errs"
	identity "pos-system/internal/services/identity/handler"
)

func main() {
	cfg := config.LoadConfig()
	config.SetupLogging(cfg.Log)
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	seed, err := config.LoadSeedConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid seed configuration")
	}
	if seed.AdminPassword == "" {
		logrus.Fatal("ADMIN_PASSWORD is required")
	}

	services, err := app.Open(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to start services")
	}
	defer services.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	admin, err := services.Identity.BootstrapAdmin(ctx, identity.CreateEmployeeInput{
		FirstName: seed.AdminFirstName,
		Username:  seed.AdminUsername,
		Password:  seed.AdminPassword,
	})
	switch {
	case errors.Is(err, errs.ErrConstraintViolation):
		logrus.WithField("username", seed.AdminUsername).Info("Admin already exists")
	case err != nil:
		logrus.WithError(err).Fatal("Failed to create admin")
	default:
		logrus.WithField("employee_id", admin.ID).Info("Admin created")
	}

	if _, err := services.Loyalty.CurrentRewards(ctx, time.Now()); err == nil {
		logrus.Info("Rewards setting already present")
		return
	} else if !errors.Is(err, errs.ErrNotFound) {
		logrus.WithError(err).Fatal("Failed to read rewards setting")
	}

	setting, err := services.Loyalty.SetRewardsSetting(ctx, seed.PointsPerDollar, seed.DollarPerPoints)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create rewards setting")
	}
	logrus.WithField("setting_id", setting.ID).Info("Rewards setting created")
}
