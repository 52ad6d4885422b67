package models

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// EmailPattern is the check carried by the email domain.
const EmailPattern = "^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$"

var emailRegexp = regexp.MustCompile(EmailPattern)

func ValidEmail(email string) bool {
	return emailRegexp.MatchString(email)
}

type RewardsSetting struct {
	ID              int64           `gorm:"size:32;primaryKey;autoIncrement" json:"id"`
	PointsPerDollar decimal.Decimal `gorm:"column:points_per_dollar;type:numeric(10,4);not null" json:"points_per_dollar"`
	DollarPerPoints decimal.Decimal `gorm:"column:dollar_per_points;type:numeric(10,4);not null" json:"dollar_per_points"`
	ChangedOn       time.Time       `gorm:"column:changed_on;not null" json:"changed_on"`
}

func (RewardsSetting) TableName() string { return "rewards_setting" }

func (r RewardsSetting) VersionID() int64       { return r.ID }
func (r RewardsSetting) EffectiveAt() time.Time { return r.ChangedOn }

type Customer struct {
	ID        int64  `gorm:"size:32;primaryKey;autoIncrement" json:"id"`
	FirstName string `gorm:"column:first_name;type:text;not null" json:"first_name"`
	LastName  string `gorm:"column:last_name;type:text;not null" json:"last_name"`
	Email     string `gorm:"column:email;type:email;uniqueIndex;not null" json:"email"`
	Points    int64  `gorm:"size:32;column:points;not null;check:points >= 0" json:"points"`
}

func (Customer) TableName() string { return "customers" }
