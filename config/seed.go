package config

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// SeedConfig holds the bootstrap data written by cmd/seed.
type SeedConfig struct {
	AdminFirstName  string
	AdminUsername   string
	AdminPassword   string
	PointsPerDollar decimal.Decimal
	DollarPerPoints decimal.Decimal
}

func LoadSeedConfig() (SeedConfig, error) {
	v := viper.New()
	v.SetDefault("ADMIN_FIRST_NAME", "Admin")
	v.SetDefault("ADMIN_USERNAME", "admin")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("SEED_POINTS_PER_DOLLAR", "1")
	v.SetDefault("SEED_DOLLAR_PER_POINTS", "0.01")
	v.AutomaticEnv()

	ppd, err := decimal.NewFromString(v.GetString("SEED_POINTS_PER_DOLLAR"))
	if err != nil {
		return SeedConfig{}, err
	}
	dpp, err := decimal.NewFromString(v.GetString("SEED_DOLLAR_PER_POINTS"))
	if err != nil {
		return SeedConfig{}, err
	}

	return SeedConfig{
		AdminFirstName:  v.GetString("ADMIN_FIRST_NAME"),
		AdminUsername:   v.GetString("ADMIN_USERNAME"),
		AdminPassword:   v.GetString("ADMIN_PASSWORD"),
		PointsPerDollar: ppd,
		DollarPerPoints: dpp,
	}, nil
}
